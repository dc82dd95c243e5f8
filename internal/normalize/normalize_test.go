package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/medicalexcom/avidiatech-match/internal/model"
)

var corpus = []string{
	"",
	" ",
	"ABC-123",
	"  Acme   Gauze\tPads  4x4 ",
	"Café Crème™ 12 oz®",
	"sku\u200b 99 / 01",
	"ＡＢＣ１２３",
	"0409-4888-02",
	" 12345 6789 01 ",
	"Sterile_Glove (Large) #7.5",
	"İstanbul Supply Co.",
	"---",
	"ß straße",
}

func TestKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "lowercase and trim", input: "  Acme Supply ", expected: "acme supply"},
		{name: "strip punctuation", input: "McKesson, Inc.", expected: "mckesson inc"},
		{name: "keep hyphen and underscore", input: "Henry-Schein_US", expected: "henry-schein_us"},
		{name: "zero width and nbsp", input: "Acme\u200bMed\u00a0Supply", expected: "acme med supply"},
		{name: "fold accents", input: "Café Crème", expected: "cafe creme"},
		{name: "full width", input: "ＡＢＣ", expected: "abc"},
		{name: "collapse whitespace", input: "a \t\n  b", expected: "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Key(tt.input))
		})
	}
}

func TestSKU(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "lowercase", input: "ABC-123", expected: "abc-123"},
		{name: "strip spaces and slashes", input: " AB 12/34 ", expected: "ab1234"},
		{name: "keep underscore", input: "ab_12", expected: "ab_12"},
		{name: "strip non ascii", input: "sku-ü1", expected: "sku-1"},
		{name: "full width digits", input: "１２３", expected: "123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SKU(tt.input))
		})
	}
}

func TestNDCItemCode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "remove whitespace", input: " 0409 4888 02 ", expected: "0409488802"},
		{name: "uppercase", input: "ab-12c", expected: "AB-12C"},
		{name: "keep hyphens", input: "0409-4888-02", expected: "0409-4888-02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NDCItemCode(tt.input))
		})
	}
}

func TestProductName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "strip marks", input: "Tylenol® Extra Strength™", expected: "tylenol extra strength"},
		{name: "collapse whitespace", input: "  Gauze   Pads\t4x4 ", expected: "gauze pads 4x4"},
		{name: "keeps punctuation", input: "Gloves, Nitrile (L)", expected: "gloves, nitrile (l)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ProductName(tt.input))
		})
	}
}

func TestIdempotent(t *testing.T) {
	funcs := map[string]func(string) string{
		"Key":         Key,
		"SKU":         SKU,
		"NDCItemCode": NDCItemCode,
		"ProductName": ProductName,
		"SupplierKey": SupplierKey,
	}

	for name, fn := range funcs {
		for _, s := range corpus {
			once := fn(s)
			assert.Equal(t, once, fn(once), "%s not idempotent for %q", name, s)
		}
		assert.Equal(t, "", fn(""), "%s of empty input", name)
	}
}

func TestRequest_DoesNotMutate(t *testing.T) {
	req := model.Request{
		TenantID:     "t1",
		SupplierKey:  " McKesson ",
		SupplierName: "McKesson Corp.",
		SKU:          "AB 12/34",
		NDCItemCode:  "0409 4888 02",
		ProductName:  "Gauze™ Pads",
		BrandName:    "Curity",
	}
	orig := req

	key := Request(req)

	assert.Equal(t, orig, req)
	assert.Equal(t, "mckesson", key.SupplierKey)
	assert.Equal(t, "ab1234", key.SKUNorm)
	assert.Equal(t, "0409488802", key.NDCItemCodeNorm)
	assert.Equal(t, "gauze pads", key.ProductNameNorm)
	assert.Equal(t, "curity", key.BrandNorm)
	assert.Equal(t, "mckesson corp", key.SupplierNameNorm)
	assert.False(t, key.Empty())
	assert.True(t, Request(model.Request{}).Empty())
}
