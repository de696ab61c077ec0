package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gym-snapshot/internal/catalog"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveOperation(t *testing.T) {
	m := NewMetrics()

	m.ObserveOperation("create", time.Second, nil)
	m.ObserveOperation("create", time.Second, NewNotFoundError("missing", nil))
	m.ObserveOperation("create", time.Second, errors.New("plain"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("create", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("create", "NOT_FOUND")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("create", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestMetrics_OpsDecoratorCountsRows(t *testing.T) {
	m := NewMetrics()
	db, registry := openTestDB(t, WithOpsDecorator(m.OpsDecorator()))
	seed(t, db, registry, gymFixture())
	ctx := context.Background()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.rows.WithLabelValues(catalog.Alunos, "insert")))

	_, err := NewSerializer(db, registry).Serialize(ctx, Request{Scope: ScopeSelective, TenantID: "t1", Tables: []string{catalog.Alunos}})
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rows.WithLabelValues(catalog.Alunos, "read")))

	_, err = NewOrchestrator(db, registry).Restore(ctx, emptyFullDocument(registry.Catalog()))
	require.NoError(t, err)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.rows.WithLabelValues(catalog.Alunos, "wipe")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rows.WithLabelValues(catalog.Medidas, "wipe")))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.ObserveDenied(ActionRestore)
	m.ObserveSnapshotSize(2048)

	path := filepath.Join(t.TempDir(), "textfile", "gym_snapshot.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `gym_snapshot_access_denied_total{action="restore"} 1`), text)
	assert.Contains(t, text, "gym_snapshot_last_snapshot_size_bytes 2048")

	assert.NoError(t, m.WriteTextfile(""))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveOperation("list", time.Millisecond, nil)
		m.ObserveDenied(ActionList)
		m.ObserveSnapshotSize(1)
		m.ObserveRows(catalog.Alunos, "read", 1)
	})
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}
