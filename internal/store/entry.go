package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/medicalexcom/avidiatech-match/internal/model"
)

const tableName = "sku_url_index"

// entryColumns is the column order shared by every read and write.
const entryColumns = `id, tenant_id, supplier_key, sku, sku_norm, ndc_item_code, ndc_item_code_norm,
	product_name, product_name_norm, brand_name, source_url, source_domain, confidence, signals,
	matched_by, last_seen_at, created_at, updated_at`

var columnNames = []string{
	"id", "tenant_id", "supplier_key", "sku", "sku_norm", "ndc_item_code", "ndc_item_code_norm",
	"product_name", "product_name_norm", "brand_name", "source_url", "source_domain", "confidence", "signals",
	"matched_by", "last_seen_at", "created_at", "updated_at",
}

// updateOnConflict lists the columns an upsert overwrites. id and
// created_at keep their original values.
var updateOnConflict = []string{
	"sku", "ndc_item_code", "ndc_item_code_norm", "product_name", "product_name_norm", "brand_name",
	"source_url", "source_domain", "confidence", "signals", "matched_by", "last_seen_at", "updated_at",
}

func entryValues(e *model.IndexEntry) ([]any, error) {
	signals, err := json.Marshal(e.Signals)
	if err != nil {
		return nil, eris.Wrap(err, "marshal signals")
	}
	return []any{
		e.ID, e.TenantID, e.SupplierKey, e.SKU, e.SKUNorm, e.NDCItemCode, e.NDCItemCodeNorm,
		e.ProductName, e.ProductNameNorm, e.BrandName, e.SourceURL, e.SourceDomain, e.Confidence, string(signals),
		e.MatchedBy, e.LastSeenAt, e.CreatedAt, e.UpdatedAt,
	}, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntry(row scannable) (*model.IndexEntry, error) {
	var e model.IndexEntry
	var signals string
	err := row.Scan(
		&e.ID, &e.TenantID, &e.SupplierKey, &e.SKU, &e.SKUNorm, &e.NDCItemCode, &e.NDCItemCodeNorm,
		&e.ProductName, &e.ProductNameNorm, &e.BrandName, &e.SourceURL, &e.SourceDomain, &e.Confidence, &signals,
		&e.MatchedBy, &e.LastSeenAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if signals != "" {
		if err := json.Unmarshal([]byte(signals), &e.Signals); err != nil {
			return nil, eris.Wrap(err, "unmarshal signals")
		}
	}
	return &e, nil
}
