package batch

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// IDsPlaceholder is replaced by the comma-joined batch ids in a template.
const IDsPlaceholder = "{ids}"

// ErrInvalidBatchSize is returned when the maximum batch size is below 1.
var ErrInvalidBatchSize = errors.New("batch size must be >= 1")

// Batch is a bounded, ordered id list plus the request template used to
// fetch it.
type Batch struct {
	// Index is the batch's position in the split sequence.
	Index int

	IDs      []string
	Template string
}

// Split divides ids into consecutive chunks of at most maxSize ids. Chunk i
// holds ids[i*maxSize : i*maxSize+maxSize]. Empty input yields no batches.
func Split(ids []string, maxSize int, template string) ([]Batch, error) {
	if maxSize < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidBatchSize, maxSize)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	batches := make([]Batch, 0, (len(ids)+maxSize-1)/maxSize)
	for start := 0; start < len(ids); start += maxSize {
		end := min(start+maxSize, len(ids))
		chunk := make([]string, end-start)
		copy(chunk, ids[start:end])
		batches = append(batches, Batch{
			Index:    len(batches),
			IDs:      chunk,
			Template: template,
		})
	}
	return batches, nil
}

// Flatten concatenates the ids of all batches in order.
func Flatten(batches []Batch) []string {
	var ids []string
	for _, b := range batches {
		ids = append(ids, b.IDs...)
	}
	return ids
}

// Render substitutes the query-escaped, comma-joined ids into the template.
func (b Batch) Render() string {
	escaped := make([]string, len(b.IDs))
	for i, id := range b.IDs {
		escaped[i] = url.QueryEscape(id)
	}
	return strings.ReplaceAll(b.Template, IDsPlaceholder, strings.Join(escaped, ","))
}
