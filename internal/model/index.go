package model

import "time"

// Evidence is the persisted explanation of why an index entry was trusted.
type Evidence struct {
	Tags    []string `json:"tags"`
	Snippet string   `json:"snippet,omitempty"`
	Score   float64  `json:"score,omitempty"`
}

// IndexEntry is a previously verified (tenant, supplier, sku) -> URL mapping.
// The natural key is (TenantID, SupplierKey, SKUNorm).
type IndexEntry struct {
	ID              string    `json:"id,omitempty"`
	TenantID        string    `json:"tenant_id"`
	SupplierKey     string    `json:"supplier_key"`
	SKU             string    `json:"sku,omitempty"`
	SKUNorm         string    `json:"sku_norm"`
	NDCItemCode     string    `json:"ndc_item_code,omitempty"`
	NDCItemCodeNorm string    `json:"ndc_item_code_norm,omitempty"`
	ProductName     string    `json:"product_name,omitempty"`
	ProductNameNorm string    `json:"product_name_norm,omitempty"`
	BrandName       string    `json:"brand_name,omitempty"`
	SourceURL       string    `json:"source_url"`
	SourceDomain    string    `json:"source_domain"`
	Confidence      float64   `json:"confidence"`
	Signals         Evidence  `json:"signals"`
	MatchedBy       string    `json:"matched_by,omitempty"`
	LastSeenAt      time.Time `json:"last_seen_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
