package activity

// Response is the envelope returned for one fetch.
type Response struct {
	Items        []*Item `json:"items"`
	StartIndex   int     `json:"startIndex"`
	ItemsPerPage int     `json:"itemsPerPage"`

	// TotalResults is nil for single-item fetches.
	TotalResults *int `json:"totalResults,omitempty"`

	// ETag is the freshness token from the primary fetch.
	ETag string `json:"etag,omitempty"`

	Filtered     bool `json:"filtered"`
	Sorted       bool `json:"sorted"`
	UpdatedSince bool `json:"updatedSince"`
}

// NewResponse builds an envelope. A nil total omits totalResults.
func NewResponse(items []*Item, startIndex int, total *int, etag string) *Response {
	if items == nil {
		items = []*Item{}
	}
	return &Response{
		Items:        items,
		StartIndex:   startIndex,
		ItemsPerPage: len(items),
		TotalResults: total,
		ETag:         etag,
	}
}

// Total returns a pointer to n, for TotalResults.
func Total(n int) *int {
	return &n
}
