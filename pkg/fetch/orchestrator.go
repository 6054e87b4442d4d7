// Package fetch runs the multi-phase activity fetch: one primary request for
// a listing or a single item, then batched secondary requests whose results
// are merged onto the primary items.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/silo-activity/pkg/activity"
	"github.com/Sternrassler/silo-activity/pkg/batch"
	"github.com/Sternrassler/silo-activity/pkg/canonical"
	"github.com/Sternrassler/silo-activity/pkg/enrich"
	"github.com/Sternrassler/silo-activity/pkg/platform"
	"github.com/Sternrassler/silo-activity/pkg/ratelimit"
	"github.com/Sternrassler/silo-activity/pkg/transport"
)

// Prometheus metrics for fetch operations.
var (
	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "silo_fetch_duration_seconds",
		Help:    "Duration of complete fetches including enrichment",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"platform", "scope", "outcome"})

	enrichmentBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "silo_enrichment_batches_total",
		Help: "Secondary batch fetches by platform, kind and status",
	}, []string{"platform", "kind", "status"})

	enrichedItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "silo_enriched_items_total",
		Help: "Secondary items merged onto primary items",
	}, []string{"platform", "kind"})
)

// Orchestrator fetches activities from one platform.
type Orchestrator struct {
	adapter   platform.Adapter
	transport transport.Transport
	guard     *ratelimit.Guard
	fetcher   *batch.Fetcher
	merger    *enrich.Merger
	config    Config
	logger    zerolog.Logger
}

// New creates an orchestrator. guard may be nil for platforms that are not
// scraped; scraped platforms without a guard are fetched unguarded.
func New(adapter platform.Adapter, tr transport.Transport, guard *ratelimit.Guard, config Config, logger zerolog.Logger) *Orchestrator {
	if config.DefaultCount <= 0 {
		config.DefaultCount = DefaultConfig().DefaultCount
	}
	if config.MaxCount <= 0 {
		config.MaxCount = DefaultConfig().MaxCount
	}
	logger = logger.With().Str("platform", adapter.Name()).Logger()

	return &Orchestrator{
		adapter:   adapter,
		transport: tr,
		guard:     guard,
		fetcher:   batch.NewFetcher(config.Batch, logger),
		merger:    enrich.NewMerger(logger),
		config:    config,
		logger:    logger,
	}
}

// Adapter returns the platform adapter.
func (o *Orchestrator) Adapter() platform.Adapter {
	return o.adapter
}

// FetchByCanonical fetches the single item named by a canonical id. An id
// from another platform's domain fails with canonical.ErrDomainMismatch.
func (o *Orchestrator) FetchByCanonical(ctx context.Context, id canonical.ID, q Query) (*activity.Response, error) {
	native, err := canonical.DecodeFor(o.adapter.Domain(), id)
	if err != nil {
		return nil, err
	}
	q.ActivityID = native
	return o.Fetch(ctx, q)
}

// Fetch runs one fetch. Only invalid input, a throttled guard and primary
// request failures are returned as errors; failed secondary batches leave
// their parents unenriched.
func (o *Orchestrator) Fetch(ctx context.Context, q Query) (*activity.Response, error) {
	q, err := o.config.normalize(q)
	if err != nil {
		return nil, err
	}

	scope := "list"
	if q.ActivityID != "" {
		scope = "item"
	}
	timer := fetchTimer{platform: o.adapter.Name(), scope: scope, start: time.Now()}
	logger := o.logger.With().
		Str("request_id", uuid.NewString()).
		Str("scope", scope).
		Logger()

	var resp *activity.Response
	if q.ActivityID != "" {
		resp, err = o.fetchItem(ctx, logger, q)
	} else {
		resp, err = o.fetchList(ctx, logger, q)
	}
	if err != nil {
		timer.observe("error")
		logger.Warn().Err(err).Msg("Fetch failed")
		return nil, err
	}

	if kinds := q.Kinds(); len(kinds) > 0 && len(resp.Items) > 0 {
		o.enrichItems(ctx, logger, resp.Items, kinds, q)
	}

	timer.observe("ok")
	logger.Info().
		Int("items", len(resp.Items)).
		Dur("duration", time.Since(timer.start)).
		Msg("Fetch completed")
	return resp, nil
}

func (o *Orchestrator) fetchList(ctx context.Context, logger zerolog.Logger, q Query) (*activity.Response, error) {
	endpoints := o.adapter.Endpoints()
	url := o.resolve(endpoints.ListURL(q.UserID, q.StartIndex, q.Count))

	resp, err := o.primary(ctx, url, q)
	if err != nil {
		if transport.StatusCode(err) == http.StatusNotFound {
			logger.Info().Str("user_id", q.UserID).Msg("User not found")
			return activity.NewResponse(nil, q.StartIndex, activity.Total(0), ""), nil
		}
		return nil, err
	}
	if resp.NotModified() {
		logger.Debug().Str("etag", q.ETag).Msg("Listing not modified")
		return activity.NewResponse(nil, q.StartIndex, activity.Total(0), q.ETag), nil
	}

	page, err := o.adapter.DecodePage(resp.Body)
	if err != nil {
		return nil, err
	}
	total := page.Total
	if total == nil {
		total = activity.Total(len(page.Items))
	}
	return activity.NewResponse(page.Items, q.StartIndex, total, resp.ETag()), nil
}

func (o *Orchestrator) fetchItem(ctx context.Context, logger zerolog.Logger, q Query) (*activity.Response, error) {
	id := o.adapter.ParseNativeID(q.ActivityID, canonical.KindPost)
	if !id.Known() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNativeID, q.ActivityID)
	}

	endpoints := o.adapter.Endpoints()
	url := o.resolve(endpoints.ItemURL(o.adapter.ItemRef(id)))

	resp, err := o.primary(ctx, url, q)
	if err != nil {
		if transport.StatusCode(err) == http.StatusNotFound {
			logger.Info().Str("activity_id", q.ActivityID).Msg("Activity not found")
			return activity.NewResponse(nil, q.StartIndex, nil, ""), nil
		}
		return nil, err
	}
	if resp.NotModified() {
		return activity.NewResponse(nil, q.StartIndex, nil, q.ETag), nil
	}

	item, err := o.adapter.DecodeItem(resp.Body)
	if err != nil {
		return nil, err
	}
	var items []*activity.Item
	if item != nil {
		items = append(items, item)
	}
	return activity.NewResponse(items, q.StartIndex, nil, resp.ETag()), nil
}

// primary issues the primary request, through the guard for scraped
// platforms.
func (o *Orchestrator) primary(ctx context.Context, url string, q Query) (*transport.Response, error) {
	resp, err := o.guarded(ctx, &transport.Request{URL: url, ETag: q.ETag}, q)
	if err != nil {
		var throttled *ratelimit.ThrottledError
		if errors.As(err, &throttled) {
			return nil, err
		}
		return nil, fmt.Errorf("primary fetch: %w", err)
	}
	return resp, nil
}

// guarded performs req, consulting the guard before and reporting the
// response to it afterwards when the platform is scraped.
func (o *Orchestrator) guarded(ctx context.Context, req *transport.Request, q Query) (*transport.Response, error) {
	useGuard := o.guard != nil && o.adapter.Scrape()

	if useGuard {
		var opts []ratelimit.CheckOption
		if q.IgnoreRateLimit {
			opts = append(opts, ratelimit.IgnoreRateLimit())
		}
		if err := o.guard.Check(ctx, opts...); err != nil {
			return nil, err
		}
	}

	resp, err := o.transport.Do(ctx, req)
	if useGuard && resp != nil {
		if gerr := o.guard.Observe(ctx, o.adapter.ThrottleSignals(), resp.StatusCode, resp.Location, err); gerr != nil {
			return nil, gerr
		}
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// enrichItems fetches and merges each requested secondary kind in turn.
func (o *Orchestrator) enrichItems(ctx context.Context, logger zerolog.Logger, items []*activity.Item, kinds []activity.SecondaryKind, q Query) {
	index := enrich.Index(items)
	name := o.adapter.Name()

	for _, kind := range kinds {
		template := o.adapter.Endpoints().SecondaryTemplate(kind)
		if template == "" {
			logger.Debug().Str("kind", string(kind)).Msg("Platform has no endpoint for secondary kind")
			continue
		}

		ids := o.enrichable(logger, items, kind)
		batches, err := batch.Split(ids, o.adapter.MaxBatchSize(), o.resolve(template))
		if err != nil {
			logger.Error().Err(err).Str("kind", string(kind)).Msg("Cannot split secondary ids")
			continue
		}
		if len(batches) == 0 {
			continue
		}

		results := o.fetcher.FetchAll(ctx, batches, func(ctx context.Context, b batch.Batch) ([]byte, error) {
			resp, err := o.guarded(ctx, &transport.Request{URL: b.Render()}, q)
			if err != nil {
				return nil, err
			}
			return resp.Body, nil
		})

		var failed int
		for _, res := range results {
			if res.Err != nil {
				failed++
				enrichmentBatches.WithLabelValues(name, string(kind), "failed").Inc()
				logger.Warn().
					Err(res.Err).
					Str("kind", string(kind)).
					Int("batch", res.Batch.Index).
					Strs("ids", res.Batch.IDs).
					Msg("Secondary batch failed, parents left unenriched")
				continue
			}

			secondary, err := o.adapter.DecodeSecondary(kind, res.Batch.IDs, res.Data)
			if err != nil {
				failed++
				enrichmentBatches.WithLabelValues(name, string(kind), "undecodable").Inc()
				logger.Warn().
					Err(err).
					Str("kind", string(kind)).
					Int("batch", res.Batch.Index).
					Msg("Secondary batch undecodable, parents left unenriched")
				continue
			}

			var stats enrich.Stats
			if kind == activity.Reactions {
				likes, reactions := splitLikes(secondary)
				stats = o.merger.MergeReactions(index, likes, reactions)
			} else {
				stats = o.merger.Merge(index, secondary, kind)
			}
			enrichmentBatches.WithLabelValues(name, string(kind), "ok").Inc()
			enrichedItems.WithLabelValues(name, string(kind)).Add(float64(stats.Added))
			logger.Debug().
				Str("kind", string(kind)).
				Int("batch", res.Batch.Index).
				Int("added", stats.Added).
				Int("duplicates", stats.Duplicates).
				Msg("Merged secondary batch")
		}

		logger.Debug().
			Str("kind", string(kind)).
			Int("batches", len(batches)).
			Int("failed", failed).
			Msg("Enrichment pass complete")
	}
}

// enrichable returns, in order, the native ids of items that qualify for
// kind. Items with unrecognized ids are skipped but stay in the response.
func (o *Orchestrator) enrichable(logger zerolog.Logger, items []*activity.Item, kind activity.SecondaryKind) []string {
	var ids []string
	for _, item := range items {
		if !o.adapter.ParseNativeID(item.NativeID, canonical.KindPost).Known() {
			logger.Warn().
				Str("native_id", item.NativeID).
				Str("kind", string(kind)).
				Msg("Skipping enrichment for item with unknown id")
			continue
		}
		if !o.adapter.SupportsEnrichment(item, kind) {
			continue
		}
		ids = append(ids, item.NativeID)
	}
	return ids
}

// splitLikes separates likes from other reactions so likes win when both
// carry the same id.
func splitLikes(secondary map[string][]activity.Item) (likes, reactions map[string][]activity.Item) {
	likes = make(map[string][]activity.Item, len(secondary))
	reactions = make(map[string][]activity.Item, len(secondary))
	for parent, items := range secondary {
		for _, item := range items {
			if item.Verb == "like" {
				likes[parent] = append(likes[parent], item)
			} else {
				reactions[parent] = append(reactions[parent], item)
			}
		}
	}
	return likes, reactions
}

// resolve prefixes relative paths with the platform's base URL.
func (o *Orchestrator) resolve(path string) string {
	base := o.adapter.Endpoints().BaseURL
	if base == "" || strings.Contains(path, "://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
