package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// WipeScope selects which entity sets the wipe phase of a restore empties.
type WipeScope string

const (
	// WipeScopeCatalog empties every cataloged entity set, whatever the document carries.
	WipeScopeCatalog WipeScope = "catalog"
	// WipeScopeIncluded empties the entity sets the document carries and every
	// set that depends on one of them, directly or through another set.
	WipeScopeIncluded WipeScope = "included"
)

const (
	DefaultMaxWait     = 10 * time.Second
	DefaultMaxDuration = 60 * time.Second
)

// ParseWipeScope normalises a configured wipe scope. Empty means catalog.
func ParseWipeScope(value string) (WipeScope, error) {
	switch WipeScope(strings.ToLower(strings.TrimSpace(value))) {
	case "", WipeScopeCatalog:
		return WipeScopeCatalog, nil
	case WipeScopeIncluded:
		return WipeScopeIncluded, nil
	default:
		return "", NewInvalidRequestError(fmt.Sprintf("unknown wipe scope %q", value), nil)
	}
}

// RestoreOptions bounds one restore call. Zero fields take the orchestrator defaults.
type RestoreOptions struct {
	WipeScope WipeScope `json:"wipe_scope" yaml:"wipe_scope"`
	// MaxWait bounds the wait for another restore to release the store.
	MaxWait time.Duration `json:"max_wait" yaml:"max_wait"`
	// MaxDuration bounds the whole wipe and recreate transaction.
	MaxDuration time.Duration `json:"max_duration" yaml:"max_duration"`
}

// RestoreResult reports what a committed restore did
type RestoreResult struct {
	Scope     Scope            `json:"tipo" yaml:"tipo"`
	TenantID  string           `json:"clienteId,omitempty" yaml:"clienteId,omitempty"`
	WipeScope WipeScope        `json:"wipe_scope" yaml:"wipe_scope"`
	Wiped     map[string]int64 `json:"wiped" yaml:"wiped"`
	Restored  map[string]int64 `json:"restored" yaml:"restored"`
	// WipeOrder and RecreateOrder record the statement order actually used.
	WipeOrder     []string      `json:"wipe_order" yaml:"wipe_order"`
	RecreateOrder []string      `json:"recreate_order" yaml:"recreate_order"`
	Duration      time.Duration `json:"duration" yaml:"duration"`
}

// TotalRestored returns the number of inserted records.
func (r *RestoreResult) TotalRestored() int64 {
	var total int64
	for _, n := range r.Restored {
		total += n
	}
	return total
}

// TotalWiped returns the number of deleted records.
func (r *RestoreResult) TotalWiped() int64 {
	var total int64
	for _, n := range r.Wiped {
		total += n
	}
	return total
}

func (r *RestoreResult) String() string {
	parts := make([]string, 0, len(r.Restored))
	for _, name := range sortedKeys(r.Restored) {
		parts = append(parts, fmt.Sprintf("%s=%d", name, r.Restored[name]))
	}
	return fmt.Sprintf("wiped %d records, restored %d records [%s] in %s",
		r.TotalWiped(), r.TotalRestored(), strings.Join(parts, " "), r.Duration.Round(time.Millisecond))
}

// Orchestrator rebuilds the destination store from a snapshot document.
// Restores through the same Orchestrator are serialized by an advisory
// single-slot lock. Reads by a Serializer do not take that lock.
type Orchestrator struct {
	db       TxBeginner
	registry *Registry
	lock     *semaphore.Weighted
	defaults RestoreOptions
	logger   *SnapshotLogger
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithRestoreDefaults sets the options used when a call leaves a field zero.
func WithRestoreDefaults(opts RestoreOptions) OrchestratorOption {
	return func(o *Orchestrator) { o.defaults = opts }
}

// WithRestoreLock shares one lock between orchestrators writing to the same store.
func WithRestoreLock(lock *semaphore.Weighted) OrchestratorOption {
	return func(o *Orchestrator) {
		if lock != nil {
			o.lock = lock
		}
	}
}

// WithRestoreLogger attaches a logger
func WithRestoreLogger(logger *SnapshotLogger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator creates a restore orchestrator over the destination store.
func NewOrchestrator(db TxBeginner, registry *Registry, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		db:       db,
		registry: registry,
		lock:     semaphore.NewWeighted(1),
		defaults: RestoreOptions{
			WipeScope:   WipeScopeCatalog,
			MaxWait:     DefaultMaxWait,
			MaxDuration: DefaultMaxDuration,
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Restore runs a restore with the orchestrator defaults.
func (o *Orchestrator) Restore(ctx context.Context, doc *Document) (*RestoreResult, error) {
	return o.RestoreWithOptions(ctx, doc, RestoreOptions{})
}

// RestoreWithOptions validates the document, then inside one transaction
// empties the wipe scope in reverse dependency order and bulk-inserts every
// carried entity set in dependency order. Either everything commits or the
// store is left exactly as it was.
func (o *Orchestrator) RestoreWithOptions(ctx context.Context, doc *Document, opts RestoreOptions) (result *RestoreResult, err error) {
	if doc == nil {
		return nil, NewInvalidFormatError("snapshot document is required", nil)
	}

	opts, err = o.resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	cat := o.registry.Catalog()
	if err := doc.Validate(cat); err != nil {
		return nil, err
	}

	wipeOrder, recreateOrder := o.plan(doc, opts.WipeScope)

	done := o.logger.LogOperation("snapshot_restore", map[string]interface{}{
		"scope":      string(doc.Scope),
		"tenant_id":  doc.tenantLabel(),
		"wipe_scope": string(opts.WipeScope),
		"records":    doc.RowCount(),
	})
	defer func() {
		var fields map[string]interface{}
		if result != nil {
			fields = map[string]interface{}{
				"wiped":    result.TotalWiped(),
				"restored": result.TotalRestored(),
			}
		}
		done(err, fields)
	}()

	if err := o.acquire(ctx, opts.MaxWait); err != nil {
		return nil, err
	}
	defer o.lock.Release(1)

	start := time.Now()
	txCtx, cancel := context.WithTimeout(ctx, opts.MaxDuration)
	defer cancel()

	tx, err := o.db.BeginTx(txCtx, nil)
	if err != nil {
		return nil, o.wrapTxError(txCtx, opts, "failed to begin restore transaction", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				o.logger.Warn("Restore rollback failed", map[string]interface{}{"error": rbErr.Error()})
			}
		}
	}()

	result = &RestoreResult{
		Scope:         doc.Scope,
		TenantID:      doc.tenantLabel(),
		WipeScope:     opts.WipeScope,
		Wiped:         make(map[string]int64, len(wipeOrder)),
		Restored:      make(map[string]int64, len(recreateOrder)),
		WipeOrder:     wipeOrder,
		RecreateOrder: recreateOrder,
	}

	for _, name := range wipeOrder {
		ops, _ := o.registry.Ops(name)
		phaseStart := time.Now()
		n, err := ops.DeleteAll(txCtx, tx)
		o.logger.LogEntitySetPhase("wipe", name, n, time.Since(phaseStart), err)
		if err != nil {
			return nil, o.wrapTxError(txCtx, opts, fmt.Sprintf("failed to wipe entity set %s", name), err).
				WithContext("entity_set", name).
				WithContext("phase", "wipe")
		}
		result.Wiped[name] = n
	}

	for _, name := range recreateOrder {
		records := doc.Data[name]
		if len(records) == 0 {
			result.Restored[name] = 0
			continue
		}
		ops, _ := o.registry.Ops(name)
		phaseStart := time.Now()
		n, err := ops.BulkInsert(txCtx, tx, records)
		o.logger.LogEntitySetPhase("recreate", name, n, time.Since(phaseStart), err)
		if err != nil {
			return nil, o.wrapTxError(txCtx, opts, fmt.Sprintf("failed to recreate entity set %s", name), err).
				WithContext("entity_set", name).
				WithContext("phase", "recreate")
		}
		result.Restored[name] = n
	}

	if err := txCtx.Err(); err != nil {
		return nil, o.wrapTxError(txCtx, opts, "restore exceeded its time budget", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, o.wrapTxError(txCtx, opts, "failed to commit restore transaction", err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// Plan returns the wipe and recreate order a restore of doc would use.
func (o *Orchestrator) Plan(doc *Document, scope WipeScope) (wipeOrder, recreateOrder []string) {
	return o.plan(doc, scope)
}

func (o *Orchestrator) plan(doc *Document, scope WipeScope) ([]string, []string) {
	cat := o.registry.Catalog()
	resolver := cat.Resolver()

	wiped := make(map[string]bool, cat.Len())
	for _, name := range resolver.Order() {
		if scope != WipeScopeIncluded || doc.Includes(name) {
			wiped[name] = true
			continue
		}
		// A kept row must not point at a wiped parent.
		set, _ := cat.Lookup(name)
		for _, dep := range set.DependsOn {
			if wiped[dep] {
				wiped[name] = true
				break
			}
		}
	}

	var wipeOrder []string
	for _, name := range resolver.ReverseOrder() {
		if wiped[name] {
			wipeOrder = append(wipeOrder, name)
		}
	}

	var recreateOrder []string
	for _, name := range resolver.Order() {
		if doc.Includes(name) {
			recreateOrder = append(recreateOrder, name)
		}
	}

	return wipeOrder, recreateOrder
}

func (o *Orchestrator) resolveOptions(opts RestoreOptions) (RestoreOptions, error) {
	if opts.WipeScope == "" {
		opts.WipeScope = o.defaults.WipeScope
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = o.defaults.MaxWait
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = o.defaults.MaxDuration
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}

	scope, err := ParseWipeScope(string(opts.WipeScope))
	if err != nil {
		return opts, err
	}
	opts.WipeScope = scope
	return opts, nil
}

// acquire waits at most maxWait for the restore lock.
func (o *Orchestrator) acquire(ctx context.Context, maxWait time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	if err := o.lock.Acquire(waitCtx, 1); err != nil {
		if parentErr := ctx.Err(); parentErr != nil && !errors.Is(parentErr, context.DeadlineExceeded) {
			return NewStoreIOError("restore cancelled while waiting for the store", parentErr)
		}
		return NewTimeoutError(
			fmt.Sprintf("another restore still holds the store after %s", maxWait), err,
		).WithContext("max_wait", maxWait.String())
	}
	return nil
}

func (o *Orchestrator) wrapTxError(txCtx context.Context, opts RestoreOptions, message string, err error) *SnapshotError {
	snapErr := classifyStoreError(txCtx, message, err)
	if snapErr.Type == ErrorTypeTimeout {
		snapErr = snapErr.WithContext("max_duration", opts.MaxDuration.String())
	}
	return snapErr
}
