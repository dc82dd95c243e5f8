package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/medicalexcom/avidiatech-match/internal/connector"
	"github.com/medicalexcom/avidiatech-match/internal/fetcher"
	"github.com/medicalexcom/avidiatech-match/internal/index"
	"github.com/medicalexcom/avidiatech-match/internal/resilience"
	"github.com/medicalexcom/avidiatech-match/internal/resolve"
	"github.com/medicalexcom/avidiatech-match/internal/store"
	"github.com/medicalexcom/avidiatech-match/internal/supplier"
	"github.com/medicalexcom/avidiatech-match/internal/verify"
	"github.com/medicalexcom/avidiatech-match/pkg/jina"
)

// resolveEnv holds everything the resolve, batch, and serve commands need.
type resolveEnv struct {
	Store     store.Store
	Suppliers *supplier.Table
	Resolver  *resolve.Resolver
}

// Close waits for pending index writes, then releases the store.
func (e *resolveEnv) Close() {
	if e.Resolver != nil {
		e.Resolver.Wait()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, store.Config{
		Driver:      store.Driver(cfg.Store.Driver),
		DatabaseURL: cfg.Store.DatabaseURL,
		Pool: &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		},
	})
}

// initSuppliers loads the supplier table. A missing file is not fatal:
// every supplier then falls back to the generic strategy.
func initSuppliers() (*supplier.Table, error) {
	path := cfg.Suppliers.Path
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		zap.L().Warn("supplier table not found, all suppliers use the generic strategy", zap.String("path", path))
		return supplier.Empty(), nil
	}
	tbl, err := supplier.LoadTable(path)
	if err != nil {
		return nil, err
	}
	zap.L().Info("supplier table loaded", zap.String("path", path), zap.Int("suppliers", len(tbl.Suppliers)))
	return tbl, nil
}

// initResolver validates config for mode, opens and migrates the store, and
// wires the resolver. Callers should defer env.Close().
func initResolver(ctx context.Context, mode string) (*resolveEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	tbl, err := initSuppliers()
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:            cfg.Verify.UserAgent,
		Timeout:              cfg.Verify.Timeout(),
		MaxBodyBytes:         cfg.Verify.MaxBodyBytes,
		RatePerHost:          rate.Limit(cfg.Verify.RatePerHost),
		GuardPrivateNetworks: cfg.Verify.GuardPrivateNetworks,
	})

	var searcher jina.Searcher
	if cfg.Jina.Key != "" {
		searcher = jina.NewClient(cfg.Jina.Key, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	} else {
		zap.L().Debug("SKUMATCH_JINA_KEY not set, web-search suppliers fall back to generic")
	}

	reg := connector.NewRegistry(tbl, connector.Deps{
		Fetcher:  f,
		Searcher: searcher,
		HTTP:     &http.Client{Timeout: cfg.Verify.Timeout()},
		Retry:    resilience.DefaultRetryConfig(),
	})
	v := verify.New(f, tbl, verify.Options{Timeout: cfg.Verify.Timeout()})
	ix := index.New(st, index.Options{MaxAge: cfg.Index.MaxAge()})

	r := resolve.New(ix, reg, v, resolve.Options{
		VerifyConcurrency: cfg.Resolve.VerifyConcurrency,
		Budget:            cfg.Resolve.Budget(),
		MaxCandidates:     cfg.Resolve.MaxCandidates,
	})

	return &resolveEnv{Store: st, Suppliers: tbl, Resolver: r}, nil
}
