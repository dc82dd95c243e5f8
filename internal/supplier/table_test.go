package supplier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTable = `
suppliers:
  McKesson:
    name: McKesson Medical-Surgical
    allowed_domains: [MMS.mckesson.com]
    patterns:
      - key: skuNorm
        template: https://mms.mckesson.com/product/{value}
      - key: ndcItemCodeNorm
        template: https://mms.mckesson.com/catalog?ndc={value}
  henryschein:
    strategy: site_search
    allowed_domains: [henryschein.com]
    site_search:
      template: https://www.henryschein.com/search?q={value}
      link_selector: "a.product-link"
  cardinal:
    api:
      template: https://api.cardinal.example/lookup/{value}
      url_field: data.product.url
  medline:
    allowed_domains: [medline.com]
    web_search: {}
  unknownish: {}
`

func TestParseTable(t *testing.T) {
	tbl, err := ParseTable([]byte(sampleTable))
	require.NoError(t, err)

	assert.Equal(t, []string{"cardinal", "henryschein", "mckesson", "medline", "unknownish"}, tbl.Keys())

	mck, ok := tbl.Get("MCKESSON")
	require.True(t, ok)
	assert.Equal(t, StrategyPattern, mck.Strategy)
	assert.Len(t, mck.Patterns, 2)
	assert.Equal(t, []string{"mms.mckesson.com"}, tbl.AllowedDomains("mckesson"))

	hs, ok := tbl.Get("henryschein")
	require.True(t, ok)
	assert.Equal(t, StrategySiteSearch, hs.Strategy)
	assert.Equal(t, KeySKUNorm, hs.SiteSearch.Key)
	assert.Equal(t, "a.product-link", hs.SiteSearch.LinkSelector)
	assert.Equal(t, 5, hs.SiteSearch.MaxResults)

	card, _ := tbl.Get("cardinal")
	assert.Equal(t, StrategyAPI, card.Strategy)
	assert.Equal(t, KeySKUNorm, card.API.Key)

	med, _ := tbl.Get("medline")
	assert.Equal(t, StrategyWebSearch, med.Strategy)
	assert.Equal(t, "medline.com", med.WebSearch.Site)

	unk, _ := tbl.Get("unknownish")
	assert.Equal(t, StrategyGeneric, unk.Strategy)
}

func TestParseTable_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown strategy",
			yaml: "suppliers:\n  a:\n    strategy: carrier_pigeon\n",
			want: "unknown strategy",
		},
		{
			name: "unknown key",
			yaml: "suppliers:\n  a:\n    patterns:\n      - key: upc\n        template: https://x.test/{value}\n",
			want: "unknown key",
		},
		{
			name: "missing placeholder",
			yaml: "suppliers:\n  a:\n    patterns:\n      - key: skuNorm\n        template: https://x.test/p\n",
			want: "placeholder",
		},
		{
			name: "api without url field",
			yaml: "suppliers:\n  a:\n    api:\n      template: https://x.test/{value}\n",
			want: "url_field",
		},
		{
			name: "web search without site",
			yaml: "suppliers:\n  a:\n    web_search: {}\n",
			want: "web_search",
		},
		{
			name: "bad yaml",
			yaml: "suppliers: [",
			want: "parse table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTable([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suppliers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTable), 0o600))

	tbl, err := LoadTable(path)
	require.NoError(t, err)
	assert.Len(t, tbl.Suppliers, 5)

	_, err = LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read table")
}

func TestTable_NilAndEmpty(t *testing.T) {
	var tbl *Table
	_, ok := tbl.Get("x")
	assert.False(t, ok)
	assert.Nil(t, tbl.AllowedDomains("x"))
	assert.Nil(t, tbl.Keys())

	empty := Empty()
	_, ok = empty.Get("x")
	assert.False(t, ok)
}
