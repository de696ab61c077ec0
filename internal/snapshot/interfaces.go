package snapshot

import (
	"context"
	"database/sql"
	"time"
)

// StorageProvider abstracts a flat namespace of snapshot files for different backend types.
// Get and Delete return a NotFound error when the object does not exist.
type StorageProvider interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]ObjectInfo, error)
	Describe() string
}

// ObjectInfo describes one stored snapshot file
type ObjectInfo struct {
	Name       string    `json:"name" yaml:"name"`
	SizeBytes  int64     `json:"size_bytes" yaml:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at" yaml:"modified_at"`
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// TxBeginner opens transactions against the destination store. *sql.DB satisfies it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// EntityOps are the typed operations bound to one entity set.
type EntityOps interface {
	// Read returns all rows, or only the tenant's rows when tenantID is not empty
	// and the set is tenant scoped.
	Read(ctx context.Context, q Querier, tenantID string) ([]Record, error)
	// DeleteAll removes every row and returns how many were removed.
	DeleteAll(ctx context.Context, q Querier) (int64, error)
	// BulkInsert writes the records and returns how many were inserted.
	BulkInsert(ctx context.Context, q Querier, records []Record) (int64, error)
}

// Action is an operation the access gate can allow or deny.
type Action string

const (
	ActionList     Action = "list"
	ActionCreate   Action = "create"
	ActionDownload Action = "download"
	ActionDelete   Action = "delete"
	ActionRestore  Action = "restore"
)

// AllActions lists every gated action.
func AllActions() []Action {
	return []Action{ActionList, ActionCreate, ActionDownload, ActionDelete, ActionRestore}
}

// Caller identifies who is asking for an operation.
type Caller struct {
	ID   string `json:"id" yaml:"id"`
	Role string `json:"role" yaml:"role"`
}

// AccessGate decides whether a caller may perform an action. It is consulted
// before any engine work happens.
type AccessGate interface {
	Authorize(ctx context.Context, caller Caller, action Action) (bool, error)
}

// AccessGateFunc adapts a function to the AccessGate interface.
type AccessGateFunc func(ctx context.Context, caller Caller, action Action) (bool, error)

// Authorize calls f.
func (f AccessGateFunc) Authorize(ctx context.Context, caller Caller, action Action) (bool, error) {
	return f(ctx, caller, action)
}
