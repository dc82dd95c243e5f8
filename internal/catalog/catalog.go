// Package catalog reads item lists for batch resolution and index seeding
// from CSV, TSV, and XLSX files. The first row is a header; columns are
// matched by name, case-insensitively, with common aliases.
package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/medicalexcom/avidiatech-match/internal/model"
)

// Record is one data row.
type Record struct {
	// Row counts non-empty rows from 1, header included.
	Row     int
	Request model.Request
	// SourceURL and Confidence are set only for index seed files.
	SourceURL  string
	Confidence float64
}

// Defaults fill columns absent from the file.
type Defaults struct {
	TenantID    string
	SupplierKey string
}

type field int

const (
	fieldTenant field = iota
	fieldSupplierKey
	fieldSupplierName
	fieldSKU
	fieldNDC
	fieldProductName
	fieldBrand
	fieldSourceURL
	fieldConfidence
)

var aliases = map[string]field{
	"tenant_id":     fieldTenant,
	"tenant":        fieldTenant,
	"supplier_key":  fieldSupplierKey,
	"supplier":      fieldSupplierKey,
	"supplier_name": fieldSupplierName,
	"sku":           fieldSKU,
	"item_number":   fieldSKU,
	"mfr_part":      fieldSKU,
	"ndc_item_code": fieldNDC,
	"ndc":           fieldNDC,
	"product_name":  fieldProductName,
	"name":          fieldProductName,
	"description":   fieldProductName,
	"brand_name":    fieldBrand,
	"brand":         fieldBrand,
	"manufacturer":  fieldBrand,
	"source_url":    fieldSourceURL,
	"url":           fieldSourceURL,
	"confidence":    fieldConfidence,
}

type columns map[field]int

func mapHeader(header []string, def Defaults) (columns, error) {
	cols := columns{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
		f, ok := aliases[key]
		if !ok {
			continue
		}
		if _, dup := cols[f]; !dup {
			cols[f] = i
		}
	}
	if !cols.hasAny(fieldSKU, fieldNDC, fieldProductName) {
		return nil, eris.New("catalog: header has no sku, ndc, or product name column")
	}
	if _, ok := cols[fieldSupplierKey]; !ok && def.SupplierKey == "" {
		return nil, eris.New("catalog: header has no supplier_key column and no default supplier")
	}
	return cols, nil
}

func (c columns) hasAny(fields ...field) bool {
	for _, f := range fields {
		if _, ok := c[f]; ok {
			return true
		}
	}
	return false
}

func (c columns) get(row []string, f field) string {
	i, ok := c[f]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func (c columns) record(n int, row []string, def Defaults) (Record, error) {
	rec := Record{
		Row: n,
		Request: model.Request{
			TenantID:     firstNonEmpty(c.get(row, fieldTenant), def.TenantID),
			SupplierKey:  firstNonEmpty(c.get(row, fieldSupplierKey), def.SupplierKey),
			SupplierName: c.get(row, fieldSupplierName),
			SKU:          c.get(row, fieldSKU),
			NDCItemCode:  c.get(row, fieldNDC),
			ProductName:  c.get(row, fieldProductName),
			BrandName:    c.get(row, fieldBrand),
		},
		SourceURL: c.get(row, fieldSourceURL),
	}
	if s := c.get(row, fieldConfidence); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return rec, eris.Wrapf(err, "catalog: row %d: confidence", n)
		}
		rec.Confidence = v
	}
	return rec, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Stream reads path and sends one Record per non-empty data row. The format
// is chosen by extension: .csv, .tsv, or .xlsx. Both channels are closed
// when reading completes.
func Stream(ctx context.Context, path string, def Defaults) (<-chan Record, <-chan error) {
	recCh := make(chan Record, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(recCh)
		defer close(errCh)

		// Stops the row reader if we return early.
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		rows, rowErrs, closeFn, err := open(ctx, path)
		if err != nil {
			errCh <- err
			return
		}
		defer closeFn()

		var cols columns
		n := 0
		for row := range rows {
			n++
			if cols == nil {
				if cols, err = mapHeader(row, def); err != nil {
					errCh <- err
					return
				}
				continue
			}
			if blank(row) {
				continue
			}
			rec, err := cols.record(n, row, def)
			if err != nil {
				errCh <- err
				return
			}
			select {
			case recCh <- rec:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "catalog: cancelled")
				return
			}
		}
		if err := <-rowErrs; err != nil {
			errCh <- err
		}
	}()

	return recCh, errCh
}

func open(ctx context.Context, path string) (<-chan []string, <-chan error, func(), error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, nil, eris.Wrapf(err, "catalog: open %s", path)
		}
		opts := CSVOptions{LazyQuotes: true, Comment: '#'}
		if strings.EqualFold(filepath.Ext(path), ".tsv") {
			opts.Delimiter = '\t'
		}
		rows, errs := StreamCSV(ctx, f, opts)
		return rows, errs, func() { _ = f.Close() }, nil
	case ".xlsx":
		rows, errs := StreamXLSX(ctx, path, XLSXOptions{})
		return rows, errs, func() {}, nil
	default:
		return nil, nil, nil, eris.Errorf("catalog: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadAll collects every record from path.
func ReadAll(ctx context.Context, path string, def Defaults) ([]Record, error) {
	recs, errs := Stream(ctx, path, def)
	var out []Record
	for r := range recs {
		out = append(out, r)
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return out, nil
}
