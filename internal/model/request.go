package model

// Request is a single SKU-to-URL resolution request. It is passed by value and
// never mutated; normalized forms live in NormalizedKey.
type Request struct {
	TenantID     string `json:"tenant_id"`
	SupplierKey  string `json:"supplier_key"`
	SupplierName string `json:"supplier_name,omitempty"`
	SKU          string `json:"sku,omitempty"`
	NDCItemCode  string `json:"ndc_item_code,omitempty"`
	ProductName  string `json:"product_name,omitempty"`
	BrandName    string `json:"brand_name,omitempty"`
}

// NormalizedKey holds the canonical comparison keys derived from a Request.
type NormalizedKey struct {
	SupplierKey      string `json:"supplier_key"`
	SKUNorm          string `json:"sku_norm"`
	NDCItemCodeNorm  string `json:"ndc_item_code_norm"`
	ProductNameNorm  string `json:"product_name_norm"`
	BrandNorm        string `json:"brand_norm"`
	SupplierNameNorm string `json:"supplier_name_norm"`
}

// Empty reports whether no identifying key survived normalization.
func (k NormalizedKey) Empty() bool {
	return k.SKUNorm == "" && k.NDCItemCodeNorm == "" && k.ProductNameNorm == ""
}
