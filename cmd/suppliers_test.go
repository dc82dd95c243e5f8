package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicalexcom/avidiatech-match/internal/supplier"
)

func TestPrintSuppliers(t *testing.T) {
	tbl, err := supplier.ParseTable([]byte(`
suppliers:
  acme:
    allowed_domains: [acme.com, shop.acme.com]
    patterns:
      - key: skuNorm
        template: https://shop.acme.com/p/{value}
  other: {}
`))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printSuppliers(&buf, tbl))

	out := buf.String()
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "acme")
	assert.Contains(t, out, "pattern")
	assert.Contains(t, out, "acme.com,shop.acme.com")
	assert.Contains(t, out, "generic")
}
