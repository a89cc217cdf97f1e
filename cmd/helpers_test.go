package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/shelf-cli/internal/audit"
	"github.com/sells-group/shelf-cli/internal/config"
	"github.com/sells-group/shelf-cli/internal/model"
	"github.com/sells-group/shelf-cli/internal/reconcile"
	"github.com/sells-group/shelf-cli/internal/store"
)

// useTestConfig installs a config pointing at temp directories for the
// duration of the test.
func useTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	prev := cfg
	cfg = &config.Config{
		Store:    config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(dir, "shelf.db")},
		Snapshot: config.SnapshotConfig{HTMLsDir: filepath.Join(dir, "htmls"), StoreName: "Kocie Figle"},
		Download: config.DownloadConfig{UserAgent: "shelf-test", Concurrency: 2, TimeoutSecs: 5},
		Audit:    audit.Config{ReferenceStore: "Kocie Figle", ExcludedMarker: "x"},
		Extract:  config.ExtractConfig{MaxAttempts: 1},
		RunLock:  config.RunLockConfig{TTLMinutes: 5},
		Server:   config.ServerConfig{Port: 8080},
	}
	t.Cleanup(func() { cfg = prev })
	return cfg
}

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := initStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

func fptr(v float64) *float64 { return &v }

func snap(ean, name, composition string, price float64) model.Snapshot {
	return model.Snapshot{
		EAN:                   ean,
		Manufacturer:          "Animonda",
		Name:                  name,
		Weight:                400,
		Composition:           composition,
		AnalyticalComposition: "białko 10,5%",
		Price:                 fptr(price),
	}
}

func day(n int) time.Time {
	return time.Date(2024, 3, n, 0, 0, 0, 0, time.UTC)
}

// seedHistory gives EAN 4017721837194 two record versions and two prices.
func seedHistory(t *testing.T, st store.Store) {
	t.Helper()
	eng := reconcile.NewEngine(st)
	ctx := context.Background()

	_, err := eng.Reconcile(ctx, "Kocie Figle", snap("4017721837194", "Animonda - Carny 400g", "wołowina", 12.99), day(1))
	require.NoError(t, err)
	_, err = eng.Reconcile(ctx, "Kocie Figle", snap("4017721837194", "Animonda - Carny 400g", "wołowina, indyk", 13.49), day(2))
	require.NoError(t, err)
}
