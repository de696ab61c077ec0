package snapshot

import (
	"fmt"
	"strings"

	"gym-snapshot/internal/catalog"
	"gym-snapshot/internal/logging"
)

// Registry is the closed mapping from entity set name to its typed table
// operations. It is built once and never changes afterwards.
type Registry struct {
	catalog *catalog.Catalog
	dialect Dialect
	schemas map[string]TableSchema
	ops     map[string]EntityOps
}

// RegistryOption configures a Registry
type RegistryOption func(*registryOptions)

type registryOptions struct {
	batchSize int
	logger    *logging.Logger
	decorate  func(name string, ops EntityOps) EntityOps
}

// WithBatchSize sets the rows per INSERT statement.
func WithBatchSize(n int) RegistryOption {
	return func(o *registryOptions) { o.batchSize = n }
}

// WithSQLLogger logs every statement issued by the table operations.
func WithSQLLogger(logger *logging.Logger) RegistryOption {
	return func(o *registryOptions) { o.logger = logger }
}

// WithOpsDecorator wraps the operations of every entity set, for example to
// record metrics.
func WithOpsDecorator(decorate func(name string, ops EntityOps) EntityOps) RegistryOption {
	return func(o *registryOptions) { o.decorate = decorate }
}

// NewRegistry binds every catalog entity set to exactly one table schema.
// Missing or extra bindings, columns that reference sets the catalog does not
// list as dependencies, and tenant key fields absent from the table are all
// rejected.
func NewRegistry(cat *catalog.Catalog, dialect Dialect, schemas []TableSchema, opts ...RegistryOption) (*Registry, error) {
	if cat == nil {
		return nil, NewConfigurationError("catalog is required", nil)
	}
	switch dialect {
	case DialectMySQL, DialectSQLite:
	default:
		return nil, NewConfigurationError(fmt.Sprintf("unsupported dialect: %s", dialect), nil)
	}

	options := registryOptions{batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(&options)
	}

	r := &Registry{
		catalog: cat,
		dialect: dialect,
		schemas: make(map[string]TableSchema, len(schemas)),
		ops:     make(map[string]EntityOps, len(schemas)),
	}

	var problems []string
	for _, schema := range schemas {
		set, ok := cat.Lookup(schema.Name)
		if !ok {
			problems = append(problems, fmt.Sprintf("table %q is not a cataloged entity set", schema.Name))
			continue
		}
		if _, dup := r.schemas[schema.Name]; dup {
			problems = append(problems, fmt.Sprintf("entity set %q is bound twice", schema.Name))
			continue
		}
		if _, ok := schema.Column("id"); !ok {
			problems = append(problems, fmt.Sprintf("table %q has no id column", schema.Name))
		}
		if set.TenantScoped {
			if _, ok := schema.Column(set.TenantKeyField); !ok {
				problems = append(problems, fmt.Sprintf("table %q lacks tenant key column %q", schema.Name, set.TenantKeyField))
			}
		}
		for _, col := range schema.Columns {
			if col.References != "" && !cat.DependsOn(schema.Name, col.References) {
				problems = append(problems, fmt.Sprintf("column %s.%s references %q which is not a declared dependency",
					schema.Name, col.Name, col.References))
			}
		}

		r.schemas[schema.Name] = schema
		var ops EntityOps = newTableOps(set, schema, options.batchSize, options.logger)
		if options.decorate != nil {
			ops = options.decorate(schema.Name, ops)
		}
		r.ops[schema.Name] = ops
	}

	for _, name := range cat.Names() {
		if _, ok := r.schemas[name]; !ok {
			problems = append(problems, fmt.Sprintf("entity set %q has no table binding", name))
		}
	}

	if len(problems) > 0 {
		return nil, NewConfigurationError("invalid entity registry: "+strings.Join(problems, "; "), nil)
	}

	return r, nil
}

// DefaultRegistry binds the gym catalog to the gym tables.
func DefaultRegistry(cat *catalog.Catalog, dialect Dialect, opts ...RegistryOption) (*Registry, error) {
	return NewRegistry(cat, dialect, DefaultSchemas(), opts...)
}

// Catalog returns the catalog the registry was built for.
func (r *Registry) Catalog() *catalog.Catalog {
	return r.catalog
}

// Dialect returns the SQL dialect of the destination store.
func (r *Registry) Dialect() Dialect {
	return r.dialect
}

// Ops returns the operations bound to an entity set.
func (r *Registry) Ops(name string) (EntityOps, bool) {
	ops, ok := r.ops[name]
	return ops, ok
}

// Schema returns the table schema bound to an entity set.
func (r *Registry) Schema(name string) (TableSchema, bool) {
	schema, ok := r.schemas[name]
	return schema, ok
}

// CreateTableStatements returns DDL for every table in creation order.
func (r *Registry) CreateTableStatements() []string {
	order := r.catalog.Resolver().Order()
	statements := make([]string, 0, len(order))
	for _, name := range order {
		statements = append(statements, r.schemas[name].CreateTableStatement(r.dialect))
	}
	return statements
}
