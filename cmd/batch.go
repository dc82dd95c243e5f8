package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/medicalexcom/avidiatech-match/internal/catalog"
	"github.com/medicalexcom/avidiatech-match/internal/model"
)

var (
	batchInput    string
	batchOutput   string
	batchTenant   string
	batchSupplier string
	batchLimit    int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Resolve every item in a CSV, TSV, or XLSX file",
	Long:  "Reads items from --input and writes one JSON line per item with its outcome.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initResolver(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		recs, err := catalog.ReadAll(ctx, batchInput, catalog.Defaults{TenantID: batchTenant, SupplierKey: batchSupplier})
		if err != nil {
			return eris.Wrap(err, "batch: read input")
		}

		w := cmd.OutOrStdout()
		if batchOutput != "" && batchOutput != "-" {
			f, err := os.Create(batchOutput)
			if err != nil {
				return eris.Wrap(err, "batch: create output")
			}
			defer func() { _ = f.Close() }()
			w = f
		}

		_, err = processBatch(ctx, recs, batchLimit, cfg.Batch.Concurrency, env.Resolver, w)
		return err
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "items file (.csv, .tsv, .xlsx)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "JSON-lines output file (default stdout)")
	batchCmd.Flags().StringVar(&batchTenant, "tenant", "default", "tenant id for rows without one")
	batchCmd.Flags().StringVar(&batchSupplier, "supplier", "", "supplier key for rows without one")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of items to resolve (0 = all)")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}

// batchLine is one JSON-lines output record.
type batchLine struct {
	Row     int            `json:"row"`
	Request model.Request  `json:"request"`
	Outcome *model.Outcome `json:"outcome,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// batchStats counts outcomes by status.
type batchStats struct {
	Confident   int64
	NeedsReview int64
	Unresolved  int64
	Failed      int64
}

// processBatch resolves recs with bounded concurrency. Lines are written in
// completion order; each carries its input row. A failed item never aborts
// the batch.
func processBatch(ctx context.Context, recs []catalog.Record, limit, concurrency int, r resolver, w io.Writer) (batchStats, error) {
	var stats batchStats
	if len(recs) == 0 {
		zap.L().Info("batch: no items found")
		return stats, nil
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("batch: processing",
		zap.Int("items", len(recs)),
		zap.Int("concurrency", concurrency),
	)

	var confident, review, unresolved, failed atomic.Int64
	var mu sync.Mutex
	enc := json.NewEncoder(w)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, rec := range recs {
		g.Go(func() error {
			line := batchLine{Row: rec.Row, Request: rec.Request}
			out, err := r.Resolve(gctx, rec.Request)
			if err != nil {
				failed.Add(1)
				line.Error = err.Error()
				zap.L().Warn("batch: item failed", zap.Int("row", rec.Row), zap.Error(err))
			} else {
				line.Outcome = out
				switch out.Status {
				case model.StatusConfident:
					confident.Add(1)
				case model.StatusNeedsReview:
					review.Add(1)
				default:
					unresolved.Add(1)
				}
			}

			mu.Lock()
			defer mu.Unlock()
			return eris.Wrap(enc.Encode(line), "batch: write line")
		})
	}

	if err := g.Wait(); err != nil {
		return stats, eris.Wrap(err, "batch processing")
	}

	stats = batchStats{
		Confident:   confident.Load(),
		NeedsReview: review.Load(),
		Unresolved:  unresolved.Load(),
		Failed:      failed.Load(),
	}
	zap.L().Info("batch: complete",
		zap.Int64("confident", stats.Confident),
		zap.Int64("needs_review", stats.NeedsReview),
		zap.Int64("unresolved", stats.Unresolved),
		zap.Int64("failed", stats.Failed),
	)
	return stats, nil
}
