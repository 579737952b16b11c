// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/pulseboard/config"
	"github.com/cardinalhq/pulseboard/internal/healthcheck"
	"github.com/cardinalhq/pulseboard/internal/notify"
	"github.com/cardinalhq/pulseboard/internal/projection"
	"github.com/cardinalhq/pulseboard/internal/responses"
	"github.com/cardinalhq/pulseboard/internal/survey"
	"github.com/cardinalhq/pulseboard/surveydb"
)

type viewFlags struct {
	page   int
	search string
	risk   string
	sort   string
}

var (
	respFlags     viewFlags
	exportOut     string
	exportAll     bool
	watchInterval time.Duration
)

func init() {
	responsesCmd := &cobra.Command{
		Use:   "responses",
		Short: "Browse and manage survey responses",
	}
	pf := responsesCmd.PersistentFlags()
	pf.IntVar(&respFlags.page, "page", 1, "Page to show, starting at 1")
	pf.StringVar(&respFlags.search, "search", "", "Case-insensitive name or email search")
	pf.StringVar(&respFlags.risk, "risk", projection.AllBuckets, "Risk bucket filter (all, no_data, low, moderate, high, very_high)")
	pf.StringVar(&respFlags.sort, "sort", "created_at:desc", "Sort as field[:asc|desc]; fields are created_at, name and risk_score")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print one page of responses with summary statistics",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runCommand("pulseboard-responses", func(ctx context.Context) error {
				return withController(ctx, nil, func(ctx context.Context, _ *config.Config, c *responses.Controller) error {
					return renderSnapshot(os.Stdout, c.View())
				})
			})
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write responses as CSV",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runCommand("pulseboard-responses", runExport)
		},
	}
	exportCmd.Flags().StringVar(&exportOut, "out", "-", "Output file, - for stdout")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "Export every page, not only the selected one")

	deleteCmd := &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete profiles and their submissions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return runCommand("pulseboard-responses", func(ctx context.Context) error {
				return withController(ctx, nil, func(ctx context.Context, _ *config.Config, c *responses.Controller) error {
					n, err := c.DeleteMany(ctx, ids)
					if err != nil {
						return err
					}
					fmt.Fprintf(os.Stdout, "deleted %d of %d profiles\n", n, len(ids))
					return nil
				})
			})
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Show a page and redraw it as the change feed reports writes",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runCommand("pulseboard-responses", runWatch)
		},
	}
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 250*time.Millisecond, "How often to check the view for changes")

	responsesCmd.AddCommand(listCmd, exportCmd, deleteCmd, watchCmd)
	rootCmd.AddCommand(responsesCmd)
}

// closeInto closes c and reports its error through errp unless an earlier
// error is already set.
func closeInto(errp *error, c io.Closer, name string) {
	if cerr := c.Close(); cerr != nil && *errp == nil {
		*errp = fmt.Errorf("close %s: %w", name, cerr)
	}
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, a := range args {
		id, err := uuid.Parse(strings.TrimSpace(a))
		if err != nil {
			return nil, fmt.Errorf("invalid profile id %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// applyViewFlags sets the filter and sort. Both act on the loaded page,
// so they may be applied before or after the load.
func applyViewFlags(c *responses.Controller, f viewFlags) error {
	c.Search(f.search)
	if err := c.SetCategoricalFilter(f.risk); err != nil {
		return err
	}
	spec, err := projection.ParseSortSpec(f.sort)
	if err != nil {
		return err
	}
	return c.SetSort(spec)
}

// withController opens the store and feed, builds a started controller
// showing the requested page, and runs fn. Everything is closed after fn
// returns.
func withController(ctx context.Context, notifier notify.Notifier, fn func(context.Context, *config.Config, *responses.Controller) error) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	fd, err := openFeed(cfg)
	if err != nil {
		_ = store.Close()
		return err
	}

	c, err := newController(store, fd, cfg, notifier)
	if err != nil {
		_ = fd.close()
		_ = store.Close()
		return err
	}
	defer func() {
		var errs *multierror.Error
		if cerr := c.Close(); cerr != nil {
			errs = multierror.Append(errs, cerr)
		}
		if cerr := fd.close(); cerr != nil {
			errs = multierror.Append(errs, cerr)
		}
		if cerr := store.Close(); cerr != nil {
			errs = multierror.Append(errs, cerr)
		}
		if err == nil {
			err = errs.ErrorOrNil()
		} else if errs != nil {
			slog.Warn("Cleanup failed", slog.Any("error", errs))
		}
	}()

	if err := c.Start(ctx); err != nil {
		return err
	}
	if err := applyViewFlags(c, respFlags); err != nil {
		return err
	}
	if err := c.LoadPage(ctx, max(respFlags.page-1, 0)); err != nil {
		return err
	}
	return fn(ctx, cfg, c)
}

func newController(store surveydb.Querier, fd *feed, cfg *config.Config, notifier notify.Notifier) (*responses.Controller, error) {
	return responses.New(responses.Deps{
		Store:     store,
		Transport: fd.transport,
		Publisher: fd.publisher,
		Notifier:  notifier,
	}, cfg.ResponsesOptions())
}

func runExport(ctx context.Context) (err error) {
	var w io.Writer = os.Stdout
	if exportOut != "" && exportOut != "-" {
		f, createErr := os.Create(exportOut)
		if createErr != nil {
			return createErr
		}
		defer closeInto(&err, f, exportOut)
		w = f
	}

	return withController(ctx, nil, func(ctx context.Context, _ *config.Config, c *responses.Controller) error {
		if !exportAll {
			return c.ExportCSV(w)
		}
		var all []survey.ViewRecord
		for page := 0; ; page++ {
			if err := c.GoToPage(ctx, page); err != nil {
				return err
			}
			snap := c.View()
			all = append(all, snap.Records...)
			if !snap.Window.HasNext() {
				break
			}
		}
		return responses.WriteCSV(w, all)
	})
}

func runWatch(ctx context.Context) error {
	out := os.Stdout
	notifier := notify.Multi(
		notify.NewLogger(nil),
		notify.Func(func(_ context.Context, n notify.Notice) {
			fmt.Fprintf(out, "! %s\n", n.Message)
		}),
	)

	return withController(ctx, notifier, func(ctx context.Context, cfg *config.Config, c *responses.Controller) error {
		health := healthcheck.NewServer(cfg.Health)
		addWatchProbes(health, c, cfg.Feed.CrossProcess())

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return health.Start(gctx)
		})
		g.Go(func() error {
			ticker := time.NewTicker(watchInterval)
			defer ticker.Stop()
			var last string
			for {
				snap := c.View()
				if sig := snapshotSignature(snap); sig != last {
					last = sig
					if err := renderSnapshot(out, snap); err != nil {
						return err
					}
				}
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
		err := g.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		slog.Info("Watch stopped")
		return nil
	})
}

// addWatchProbes makes the watch ready once a page is on screen and the
// change feed, when there is one, is live or has given up.
func addWatchProbes(health *healthcheck.Server, c *responses.Controller, hasFeed bool) {
	health.AddProbe("page_loaded", func() error {
		snap := c.View()
		if snap.Err != nil {
			return snap.Err
		}
		if snap.Loading {
			return errors.New("page loading")
		}
		return nil
	})
	if !hasFeed {
		return
	}
	health.AddProbe("live_updates", func() error {
		snap := c.View()
		if snap.LiveUnavailable || snap.Live.Live() {
			return nil
		}
		return fmt.Errorf("change feed %s", snap.Live)
	})
}

// snapshotSignature changes whenever anything the renderer prints changes.
func snapshotSignature(s responses.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d/%d|%s|%t|%t|%t|", s.Window.PageIndex, s.Window.TotalPages, s.Window.TotalItems,
		s.Live, s.Loading, s.Stale, s.LiveUnavailable)
	for _, r := range s.Records {
		b.WriteString(r.ID.String())
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(r.TotalScore))
		b.WriteByte(',')
	}
	if s.Err != nil {
		b.WriteString(s.Err.Error())
	}
	return b.String()
}

func renderSnapshot(w io.Writer, s responses.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "page %d of %d (%d respondents)", s.Window.PageIndex+1, max(s.Window.TotalPages, 1), s.Window.TotalItems)
	fmt.Fprintf(tw, "  live: %s", s.Live)
	if s.Stale {
		fmt.Fprint(tw, "  [refreshing]")
	}
	fmt.Fprintln(tw)
	if s.Err != nil {
		fmt.Fprintf(tw, "error: %v\n", s.Err)
	}

	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tDEPARTMENT\tCOMPLETED\tRISK\tSCORE")
	for _, r := range s.Records {
		completed := "-"
		if r.Completed {
			completed = r.CompletedAt.UTC().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			r.ID, r.FullName(), r.Email, r.Department, completed, r.RiskBucket, r.TotalScore)
	}
	if len(s.Records) == 0 {
		fmt.Fprintln(tw, "(no responses)")
	}

	if s.Stats != nil {
		parts := make([]string, 0, len(survey.Buckets))
		for _, b := range survey.Buckets {
			parts = append(parts, fmt.Sprintf("%s=%d", b, s.Stats.Count(b)))
		}
		fmt.Fprintf(tw, "total=%d completed=%d %s\n", s.Stats.Total, s.Stats.Completed, strings.Join(parts, " "))
	}
	return tw.Flush()
}
