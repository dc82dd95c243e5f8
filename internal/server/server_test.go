package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicalexcom/avidiatech-match/internal/model"
)

type fakeResolver struct {
	got model.Request
	out *model.Outcome
	err error
}

func (f *fakeResolver) Resolve(_ context.Context, req model.Request) (*model.Outcome, error) {
	f.got = req
	return f.out, f.err
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := New(Config{}, &fakeResolver{}, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestResolve_OK(t *testing.T) {
	fr := &fakeResolver{out: &model.Outcome{
		Status:      model.StatusConfident,
		ResolvedURL: "https://shop.example.com/p/a-1",
		Confidence:  0.9,
		MatchedBy:   "connector:pattern",
	}}
	s := New(Config{}, fr, nil)

	rec := do(t, s.Handler(), http.MethodPost, "/v1/resolve",
		`{"tenant_id":"t1","supplier_key":"acme","sku":"A-1","brand_name":"Curity"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var out model.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, model.StatusConfident, out.Status)
	assert.Equal(t, "https://shop.example.com/p/a-1", out.ResolvedURL)

	assert.Equal(t, "t1", fr.got.TenantID)
	assert.Equal(t, "acme", fr.got.SupplierKey)
	assert.Equal(t, "Curity", fr.got.BrandName)
}

func TestResolve_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"tenant_id":`, "invalid request body"},
		{"unknown field", `{"tenant_id":"t1","supplier_key":"a","sku":"x","color":"red"}`, "invalid request body"},
		{"no tenant", `{"supplier_key":"a","sku":"x"}`, "tenant_id is required"},
		{"no supplier", `{"tenant_id":"t1","sku":"x"}`, "supplier_key is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := &fakeResolver{}
			rec := do(t, New(Config{}, fr, nil).Handler(), http.MethodPost, "/v1/resolve", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			assert.Empty(t, fr.got.TenantID)
		})
	}
}

func TestResolve_NDCOnlyAccepted(t *testing.T) {
	fr := &fakeResolver{out: &model.Outcome{Status: model.StatusUnresolved}}
	rec := do(t, New(Config{}, fr, nil).Handler(), http.MethodPost, "/v1/resolve",
		`{"tenant_id":"t1","supplier_key":"a","ndc_item_code":"0409-4888"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0409-4888", fr.got.NDCItemCode)
}

func TestResolve_NameOnlyAccepted(t *testing.T) {
	fr := &fakeResolver{out: &model.Outcome{Status: model.StatusUnresolved}}
	rec := do(t, New(Config{}, fr, nil).Handler(), http.MethodPost, "/v1/resolve",
		`{"tenant_id":"t","supplier_key":"acme","product_name":"Nitrile Exam Gloves"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", fr.got.SupplierKey)
	assert.Equal(t, "Nitrile Exam Gloves", fr.got.ProductName)
	assert.Empty(t, fr.got.SKU)
}

func TestResolve_NoIdentifiersStillResolves(t *testing.T) {
	fr := &fakeResolver{out: &model.Outcome{Status: model.StatusUnresolved}}
	rec := do(t, New(Config{}, fr, nil).Handler(), http.MethodPost, "/v1/resolve",
		`{"tenant_id":"t1","supplier_key":"a"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t1", fr.got.TenantID)
}

func TestResolve_Aborted(t *testing.T) {
	fr := &fakeResolver{err: errors.New("context canceled")}
	rec := do(t, New(Config{}, fr, nil).Handler(), http.MethodPost, "/v1/resolve",
		`{"tenant_id":"t1","supplier_key":"a","sku":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSuppliers(t *testing.T) {
	s := New(Config{}, &fakeResolver{}, []string{"acme", "medline"})
	rec := do(t, s.Handler(), http.MethodGet, "/v1/suppliers", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"suppliers":["acme","medline"]}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	s := New(Config{AllowedOrigins: []string{"https://app.example.com"}}, &fakeResolver{}, nil)
	req := httptest.NewRequest(http.MethodOptions, "/v1/resolve", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestShutdownWithoutStart(t *testing.T) {
	s := New(Config{}, &fakeResolver{}, nil)
	assert.NoError(t, s.Shutdown(context.Background()))
}
