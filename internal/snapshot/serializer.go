package snapshot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gym-snapshot/internal/catalog"
)

// DefaultSelectiveTables is used when a selective request names no tables.
var DefaultSelectiveTables = []string{
	catalog.Alunos,
	catalog.Medidas,
	catalog.Avaliacoes,
	catalog.Exercicios,
	catalog.Treinos,
}

// Request describes what a snapshot should contain.
type Request struct {
	Scope Scope `json:"tipo" yaml:"scope"`
	// TenantID filters tenant-scoped sets of a selective snapshot.
	TenantID string `json:"clienteId,omitempty" yaml:"tenant_id,omitempty"`
	// Tables lists the sets of a selective snapshot. Empty means the defaults.
	Tables []string `json:"tabelas,omitempty" yaml:"tables,omitempty"`
}

// Serializer reads entity sets from the destination store into a Document.
type Serializer struct {
	db            TxBeginner
	registry      *Registry
	defaultTables []string
	logger        *SnapshotLogger
	now           func() time.Time
}

// SerializerOption configures a Serializer
type SerializerOption func(*Serializer)

// WithDefaultTables overrides the selective default table list.
func WithDefaultTables(tables []string) SerializerOption {
	return func(s *Serializer) {
		if len(tables) > 0 {
			s.defaultTables = append([]string(nil), tables...)
		}
	}
}

// WithSerializerLogger attaches a logger
func WithSerializerLogger(logger *SnapshotLogger) SerializerOption {
	return func(s *Serializer) { s.logger = logger }
}

// WithClock replaces the time source used for document timestamps.
func WithClock(now func() time.Time) SerializerOption {
	return func(s *Serializer) { s.now = now }
}

// NewSerializer creates a serializer over the destination store.
func NewSerializer(db TxBeginner, registry *Registry, opts ...SerializerOption) *Serializer {
	s := &Serializer{
		db:            db,
		registry:      registry,
		defaultTables: append([]string(nil), DefaultSelectiveTables...),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns the entity sets a request covers: the whole catalog in
// declaration order for a full snapshot, otherwise the requested (or default)
// tables in the order given with duplicates dropped.
func (s *Serializer) Resolve(req Request) ([]string, error) {
	cat := s.registry.Catalog()

	switch req.Scope {
	case ScopeFull:
		return cat.Names(), nil
	case ScopeSelective:
	default:
		return nil, NewInvalidRequestError(fmt.Sprintf("unknown snapshot scope %q", req.Scope), nil)
	}

	requested := req.Tables
	if len(requested) == 0 {
		requested = s.defaultTables
	}

	var unknown []string
	seen := make(map[string]bool, len(requested))
	tables := make([]string, 0, len(requested))
	for _, raw := range requested {
		name := strings.TrimSpace(raw)
		if name == "" || seen[name] {
			continue
		}
		if !cat.Contains(name) {
			unknown = append(unknown, name)
			continue
		}
		seen[name] = true
		tables = append(tables, name)
	}

	if len(unknown) > 0 {
		return nil, NewInvalidRequestError(
			fmt.Sprintf("unknown entity sets: %s", strings.Join(unknown, ", ")), nil,
		).WithContext("unknown", unknown)
	}
	if len(tables) == 0 {
		return nil, NewInvalidRequestError("selective snapshot needs at least one entity set", nil)
	}
	return tables, nil
}

// Serialize reads the requested entity sets inside a single transaction so
// the document reflects one consistent view. Any read failure aborts the
// whole call and no document is returned.
func (s *Serializer) Serialize(ctx context.Context, req Request) (doc *Document, err error) {
	tables, err := s.Resolve(req)
	if err != nil {
		return nil, err
	}

	tenantID := ""
	if req.Scope == ScopeSelective {
		tenantID = strings.TrimSpace(req.TenantID)
	}

	done := s.logger.LogOperation("snapshot_serialize", map[string]interface{}{
		"scope":     string(req.Scope),
		"tenant_id": tenantID,
		"tables":    len(tables),
	})
	defer func() {
		var result map[string]interface{}
		if doc != nil {
			result = map[string]interface{}{"records": doc.RowCount()}
		}
		done(err, result)
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyStoreError(ctx, "failed to open read transaction", err)
	}
	defer tx.Rollback()

	data := make(map[string][]Record, len(tables))
	for _, name := range tables {
		ops, ok := s.registry.Ops(name)
		if !ok {
			return nil, NewInvalidRequestError(fmt.Sprintf("entity set %q has no registered operations", name), nil)
		}

		phaseStart := time.Now()
		records, err := ops.Read(ctx, tx, tenantID)
		s.logger.LogEntitySetPhase("read", name, int64(len(records)), time.Since(phaseStart), err)
		if err != nil {
			return nil, classifyStoreError(ctx, fmt.Sprintf("failed to read entity set %s", name), err).
				WithContext("entity_set", name)
		}
		data[name] = records
	}

	if err := tx.Commit(); err != nil {
		return nil, classifyStoreError(ctx, "failed to close read transaction", err)
	}

	doc = &Document{
		Timestamp: s.now().UTC(),
		Scope:     req.Scope,
		Tables:    tables,
		Data:      data,
	}
	if tenantID != "" {
		doc.TenantID = &tenantID
	}
	return doc, nil
}
