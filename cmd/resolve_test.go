package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicalexcom/avidiatech-match/internal/model"
)

func TestResolveCmd_UnknownSupplierIsUnresolved(t *testing.T) {
	testConfig(t)

	old := resolveReq
	t.Cleanup(func() { resolveReq = old })
	resolveReq = model.Request{TenantID: "t1", SupplierKey: "nobody", SKU: "X-1"}

	var buf bytes.Buffer
	resolveCmd.SetOut(&buf)
	resolveCmd.SetContext(context.Background())
	t.Cleanup(func() { resolveCmd.SetOut(nil) })

	require.NoError(t, resolveCmd.RunE(resolveCmd, nil))

	var out model.Outcome
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, model.StatusUnresolved, out.Status)
	assert.Empty(t, out.Candidates)
}

func TestResolveCmd_NameOnlyIsAccepted(t *testing.T) {
	testConfig(t)

	old := resolveReq
	t.Cleanup(func() { resolveReq = old })
	resolveReq = model.Request{TenantID: "t1", SupplierKey: "nobody", ProductName: "Nitrile Exam Gloves"}

	var buf bytes.Buffer
	resolveCmd.SetOut(&buf)
	resolveCmd.SetContext(context.Background())
	t.Cleanup(func() { resolveCmd.SetOut(nil) })

	require.NoError(t, resolveCmd.RunE(resolveCmd, nil))

	var out model.Outcome
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, model.StatusUnresolved, out.Status)
}

func TestResolveOne_WritesIndentedJSON(t *testing.T) {
	fr := &fakeResolver{outcomes: map[string]*model.Outcome{
		"A-1": {Status: model.StatusConfident, ResolvedURL: "https://acme.example.com/p/a-1", Confidence: 0.9},
	}}

	var buf bytes.Buffer
	require.NoError(t, resolveOne(context.Background(), fr, model.Request{SKU: "A-1"}, &buf))
	assert.Contains(t, buf.String(), "\n  \"status\": \"resolved_confident\"")
}
