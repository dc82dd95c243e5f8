package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/medicalexcom/avidiatech-match/internal/catalog"
	"github.com/medicalexcom/avidiatech-match/internal/model"
	"github.com/medicalexcom/avidiatech-match/internal/normalize"
	"github.com/medicalexcom/avidiatech-match/internal/safety"
	"github.com/medicalexcom/avidiatech-match/internal/store"
)

var (
	importPath     string
	importTenant   string
	importSupplier string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Seed the index with known SKU to URL mappings",
	Long:  "Reads a CSV, TSV, or XLSX file with sku and source_url columns and upserts each row into the index as a confident match.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("import"); err != nil {
			return err
		}

		recs, err := catalog.ReadAll(ctx, importPath, catalog.Defaults{TenantID: importTenant, SupplierKey: importSupplier})
		if err != nil {
			return eris.Wrap(err, "import: read input")
		}
		entries, skipped := seedEntries(recs)

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		n, err := importEntries(ctx, st, entries)
		if err != nil {
			return err
		}
		zap.L().Info("import: complete", zap.Int64("upserted", n), zap.Int("skipped", skipped))
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importPath, "input", "", "seed file (.csv, .tsv, .xlsx)")
	importCmd.Flags().StringVar(&importTenant, "tenant", "default", "tenant id for rows without one")
	importCmd.Flags().StringVar(&importSupplier, "supplier", "", "supplier key for rows without one")
	_ = importCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(importCmd)
}

const seedConfidence = 0.9

// seedEntries turns seed rows into index entries. Rows without a usable
// SKU or a safe public URL are skipped and logged.
func seedEntries(recs []catalog.Record) ([]model.IndexEntry, int) {
	entries := make([]model.IndexEntry, 0, len(recs))
	skipped := 0
	for _, rec := range recs {
		key := normalize.Request(rec.Request)
		switch {
		case key.SKUNorm == "":
			zap.L().Warn("import: row has no usable sku", zap.Int("row", rec.Row))
			skipped++
			continue
		case !safety.IsSafePublicURL(rec.SourceURL):
			zap.L().Warn("import: row has no safe source_url", zap.Int("row", rec.Row), zap.String("url", rec.SourceURL))
			skipped++
			continue
		}
		conf := rec.Confidence
		if conf <= 0 {
			conf = seedConfidence
		}
		entries = append(entries, model.IndexEntry{
			TenantID:        rec.Request.TenantID,
			SupplierKey:     key.SupplierKey,
			SKU:             rec.Request.SKU,
			SKUNorm:         key.SKUNorm,
			NDCItemCode:     rec.Request.NDCItemCode,
			NDCItemCodeNorm: key.NDCItemCodeNorm,
			ProductName:     rec.Request.ProductName,
			ProductNameNorm: key.ProductNameNorm,
			BrandName:       rec.Request.BrandName,
			SourceURL:       rec.SourceURL,
			SourceDomain:    safety.DomainOf(rec.SourceURL),
			Confidence:      min(1, conf),
			Signals:         model.Evidence{Tags: []string{"imported"}},
			MatchedBy:       "import",
		})
	}
	return entries, skipped
}

func importEntries(ctx context.Context, st store.Store, entries []model.IndexEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	if err := st.Migrate(ctx); err != nil {
		return 0, eris.Wrap(err, "migrate store")
	}
	n, err := st.ImportEntries(ctx, entries)
	if err != nil {
		return 0, eris.Wrap(err, "import: upsert entries")
	}
	return n, nil
}
