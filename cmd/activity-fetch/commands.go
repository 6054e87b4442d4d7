package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Sternrassler/silo-activity/pkg/activity"
	"github.com/Sternrassler/silo-activity/pkg/canonical"
	"github.com/Sternrassler/silo-activity/pkg/fetch"
	"github.com/Sternrassler/silo-activity/pkg/ratelimit"
)

func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "replies", Aliases: []string{"r"}, Usage: "Attach replies to each activity"},
		&cli.BoolFlag{Name: "reactions", Usage: "Attach likes and reactions to each activity"},
		&cli.BoolFlag{Name: "shares", Usage: "Attach shares to each activity"},
		&cli.BoolFlag{Name: "ignore-rate-limit", Usage: "Fetch even while the platform is backing off"},
		&cli.StringFlag{Name: "etag", Usage: "Send `ETAG` as a conditional request"},
	}
}

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a user's activities, or one activity by native id",
		ArgsUsage: "PLATFORM [ACTIVITY_ID]",
		Flags: append(queryFlags(),
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "User whose activities to list", Value: "me"},
			&cli.IntFlag{Name: "start", Usage: "Index of the first activity"},
			&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Usage: "Activities per page (0 uses the configured default)"},
			&cli.DurationFlag{Name: "watch", Usage: "Repeat the fetch every `INTERVAL` until interrupted"},
		),
		Action: runFetch,
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Fetch one activity by canonical id (tag:domain:native)",
		ArgsUsage: "CANONICAL_ID",
		Flags:     queryFlags(),
		Action:    runGet,
	}
}

func throttleCommand() *cli.Command {
	return &cli.Command{
		Name:  "throttle",
		Usage: "Show or clear the shared rate limit backoff state",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "reset", Usage: "Clear the backoff state"},
		},
		Action: runThrottle,
	}
}

func platformsCommand() *cli.Command {
	return &cli.Command{
		Name:   "platforms",
		Usage:  "List the supported platforms",
		Action: runPlatforms,
	}
}

func queryFromFlags(c *cli.Context) fetch.Query {
	return fetch.Query{
		ETag:            c.String("etag"),
		FetchReplies:    c.Bool("replies"),
		FetchReactions:  c.Bool("reactions"),
		FetchShares:     c.Bool("shares"),
		IgnoreRateLimit: c.Bool("ignore-rate-limit"),
	}
}

func runFetch(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: PLATFORM")
	}

	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	adapter, err := rt.registry.Lookup(c.Args().Get(0))
	if err != nil {
		return err
	}
	o := rt.orchestrator(adapter)

	q := queryFromFlags(c)
	q.UserID = c.String("user")
	q.ActivityID = c.Args().Get(1)
	q.StartIndex = c.Int("start")
	q.Count = c.Int("count")

	interval := c.Duration("watch")
	if interval <= 0 {
		resp, err := rt.fetch(c.Context, o, q)
		if err != nil {
			return err
		}
		return writeJSON(c.App.Writer, resp)
	}
	return watch(c.Context, rt, o, q, interval, c.App.Writer)
}

// watch polls until ctx is done. Throttled polls are skipped; a poll whose
// ETag is unchanged prints nothing.
func watch(ctx context.Context, rt *runtime, o *fetch.Orchestrator, q fetch.Query, interval time.Duration, w io.Writer) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		resp, err := rt.fetch(ctx, o, q)
		switch {
		case errors.Is(err, ratelimit.ErrThrottled):
			rt.logger.Warn().Err(err).Msg("Poll skipped")
		case err != nil:
			return err
		case resp.ETag != "" && resp.ETag == q.ETag:
			rt.logger.Info().Str("etag", resp.ETag).Msg("No new activity")
		default:
			if err := writeJSON(w, resp); err != nil {
				return err
			}
			if resp.ETag != "" {
				q.ETag = resp.ETag
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func runGet(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: CANONICAL_ID")
	}
	id := canonical.ID(c.Args().Get(0))
	domain, _, err := canonical.Decode(id)
	if err != nil {
		return err
	}

	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	adapter, err := rt.registry.LookupDomain(domain)
	if err != nil {
		return err
	}

	resp, err := rt.orchestrator(adapter).FetchByCanonical(c.Context, id, queryFromFlags(c))
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, resp)
}

func runThrottle(c *cli.Context) error {
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	if c.Bool("reset") {
		if err := rt.guard.Reset(c.Context); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, "clear")
		return nil
	}

	state, err := rt.guard.State(c.Context)
	if err != nil {
		return err
	}
	now := time.Now()
	if !state.Throttled(now, rt.guard.Window()) {
		fmt.Fprintln(c.App.Writer, "clear")
		return nil
	}
	fmt.Fprintf(c.App.Writer, "throttled since %s, clears in %s",
		state.LastThrottledAt.Format(time.RFC3339),
		state.TimeUntilClear(now, rt.guard.Window()).Round(time.Second))
	if state.LastError != nil {
		fmt.Fprintf(c.App.Writer, ": %v", state.LastError)
	}
	fmt.Fprintln(c.App.Writer)
	return nil
}

func runPlatforms(c *cli.Context) error {
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDOMAIN\tBASE URL\tMAX BATCH\tSCRAPE")
	for _, name := range rt.registry.Names() {
		a, err := rt.registry.Lookup(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%v\n", a.Name(), a.Domain(), a.Endpoints().BaseURL, a.MaxBatchSize(), a.Scrape())
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, resp *activity.Response) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
