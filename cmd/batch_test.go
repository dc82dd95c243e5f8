package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicalexcom/avidiatech-match/internal/catalog"
	"github.com/medicalexcom/avidiatech-match/internal/model"
)

// fakeResolver answers by SKU; unknown SKUs are unresolved.
type fakeResolver struct {
	mu       sync.Mutex
	outcomes map[string]*model.Outcome
	fail     map[string]error
	calls    int
}

func (f *fakeResolver) Resolve(_ context.Context, req model.Request) (*model.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[req.SKU]; err != nil {
		return nil, err
	}
	if out, ok := f.outcomes[req.SKU]; ok {
		return out, nil
	}
	return &model.Outcome{Status: model.StatusUnresolved}, nil
}

func records(skus ...string) []catalog.Record {
	recs := make([]catalog.Record, len(skus))
	for i, s := range skus {
		recs[i] = catalog.Record{Row: i + 2, Request: model.Request{TenantID: "t1", SupplierKey: "acme", SKU: s}}
	}
	return recs
}

func readLines(t *testing.T, data []byte) []batchLine {
	t.Helper()
	var lines []batchLine
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var l batchLine
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
		lines = append(lines, l)
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestProcessBatch(t *testing.T) {
	fr := &fakeResolver{
		outcomes: map[string]*model.Outcome{
			"A-1": {Status: model.StatusConfident, ResolvedURL: "https://acme.example.com/p/a-1"},
			"A-2": {Status: model.StatusNeedsReview},
		},
		fail: map[string]error{"A-4": errors.New("context canceled")},
	}

	var buf bytes.Buffer
	stats, err := processBatch(context.Background(), records("A-1", "A-2", "A-3", "A-4"), 0, 3, fr, &buf)
	require.NoError(t, err)

	assert.Equal(t, batchStats{Confident: 1, NeedsReview: 1, Unresolved: 1, Failed: 1}, stats)

	lines := readLines(t, buf.Bytes())
	require.Len(t, lines, 4)
	byRow := map[int]batchLine{}
	for _, l := range lines {
		byRow[l.Row] = l
	}
	assert.Equal(t, "https://acme.example.com/p/a-1", byRow[2].Outcome.ResolvedURL)
	assert.Equal(t, "A-4", byRow[5].Request.SKU)
	assert.Nil(t, byRow[5].Outcome)
	assert.Equal(t, "context canceled", byRow[5].Error)
}

func TestProcessBatch_Limit(t *testing.T) {
	fr := &fakeResolver{}
	var buf bytes.Buffer
	_, err := processBatch(context.Background(), records("A", "B", "C"), 2, 1, fr, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, fr.calls)
	assert.Len(t, readLines(t, buf.Bytes()), 2)
}

func TestProcessBatch_Empty(t *testing.T) {
	fr := &fakeResolver{}
	var buf bytes.Buffer
	stats, err := processBatch(context.Background(), nil, 0, 4, fr, &buf)
	require.NoError(t, err)
	assert.Zero(t, stats)
	assert.Zero(t, fr.calls)
	assert.Empty(t, buf.String())
}

func TestBatchCmd_EndToEnd(t *testing.T) {
	testConfig(t)

	input := filepath.Join(t.TempDir(), "items.csv")
	require.NoError(t, os.WriteFile(input, []byte("sku,product_name\nX-1,Gauze\nX-2,Gloves\n"), 0o600))
	output := filepath.Join(t.TempDir(), "out.jsonl")

	oldIn, oldOut, oldSup := batchInput, batchOutput, batchSupplier
	t.Cleanup(func() { batchInput, batchOutput, batchSupplier = oldIn, oldOut, oldSup })
	batchInput, batchOutput, batchSupplier = input, output, "nobody"

	batchCmd.SetContext(context.Background())
	require.NoError(t, batchCmd.RunE(batchCmd, nil))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := readLines(t, data)
	require.Len(t, lines, 2)
	for _, l := range lines {
		require.NotNil(t, l.Outcome)
		assert.Equal(t, model.StatusUnresolved, l.Outcome.Status)
		assert.Equal(t, "nobody", l.Request.SupplierKey)
	}
}
