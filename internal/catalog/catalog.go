package catalog

import (
	"fmt"
	"strings"
)

// Entity set names of the gym catalog.
const (
	Clientes           = "clientes"
	Usuarios           = "usuarios"
	Permissoes         = "permissoes"
	Alunos             = "alunos"
	Medidas            = "medidas"
	Avaliacoes         = "avaliacoes"
	Exercicios         = "exercicios"
	Treinos            = "treinos"
	TreinoExercicios   = "treinoExercicios"
	Cronogramas        = "cronogramas"
	ExecucoesTreino    = "execucoesTreino"
	ExecucoesExercicio = "execucoesExercicio"
)

// TenantKey is the column carrying the tenant id on tenant-scoped child sets.
const TenantKey = "clienteId"

// EntitySet describes one backed-up table.
type EntitySet struct {
	Name           string   `json:"name" yaml:"name"`
	TenantScoped   bool     `json:"tenant_scoped" yaml:"tenant_scoped"`
	TenantKeyField string   `json:"tenant_key_field,omitempty" yaml:"tenant_key_field,omitempty"`
	DependsOn      []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// Catalog is an immutable set of entity sets with their dependency edges.
// Build it once with New and pass it explicitly to whatever needs it.
type Catalog struct {
	sets     []EntitySet
	index    map[string]int
	resolver *Resolver
}

// New validates the entity sets and resolves their dependency order.
// Declaration order is preserved and used to break ties in the resolved order.
func New(sets ...EntitySet) (*Catalog, error) {
	if len(sets) == 0 {
		return nil, NewCatalogError("catalog must contain at least one entity set", nil)
	}

	var problems []string
	c := &Catalog{
		sets:  make([]EntitySet, 0, len(sets)),
		index: make(map[string]int, len(sets)),
	}

	for _, set := range sets {
		name := strings.TrimSpace(set.Name)
		if name == "" {
			problems = append(problems, "entity set name cannot be empty")
			continue
		}
		if _, dup := c.index[name]; dup {
			problems = append(problems, fmt.Sprintf("duplicate entity set %q", name))
			continue
		}
		if set.TenantScoped && set.TenantKeyField == "" {
			problems = append(problems, fmt.Sprintf("entity set %q is tenant scoped but has no tenant key field", name))
		}
		if !set.TenantScoped && set.TenantKeyField != "" {
			problems = append(problems, fmt.Sprintf("entity set %q declares a tenant key field but is not tenant scoped", name))
		}

		copied := set
		copied.Name = name
		copied.DependsOn = append([]string(nil), set.DependsOn...)
		c.index[name] = len(c.sets)
		c.sets = append(c.sets, copied)
	}

	for _, set := range c.sets {
		for _, dep := range set.DependsOn {
			if dep == set.Name {
				problems = append(problems, fmt.Sprintf("entity set %q depends on itself", set.Name))
				continue
			}
			if _, ok := c.index[dep]; !ok {
				problems = append(problems, fmt.Sprintf("entity set %q depends on unknown set %q", set.Name, dep))
			}
		}
	}

	if len(problems) > 0 {
		return nil, NewCatalogError("invalid catalog: "+strings.Join(problems, "; "), nil)
	}

	resolver, err := newResolver(c)
	if err != nil {
		return nil, err
	}
	c.resolver = resolver

	return c, nil
}

// MustNew is like New but panics on an invalid catalog. It is meant for
// catalogs declared in code, where an error is an authoring bug.
func MustNew(sets ...EntitySet) *Catalog {
	c, err := New(sets...)
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the gym catalog.
func Default() *Catalog {
	return MustNew(
		EntitySet{Name: Clientes, TenantScoped: true, TenantKeyField: "id"},
		EntitySet{Name: Usuarios, TenantScoped: true, TenantKeyField: TenantKey, DependsOn: []string{Clientes}},
		EntitySet{Name: Permissoes, DependsOn: []string{Usuarios}},
		EntitySet{Name: Alunos, TenantScoped: true, TenantKeyField: TenantKey, DependsOn: []string{Clientes}},
		EntitySet{Name: Medidas, TenantScoped: true, TenantKeyField: TenantKey, DependsOn: []string{Alunos}},
		EntitySet{Name: Avaliacoes, TenantScoped: true, TenantKeyField: TenantKey, DependsOn: []string{Alunos}},
		EntitySet{Name: Exercicios, TenantScoped: true, TenantKeyField: TenantKey, DependsOn: []string{Clientes}},
		EntitySet{Name: Treinos, TenantScoped: true, TenantKeyField: TenantKey, DependsOn: []string{Alunos}},
		EntitySet{Name: TreinoExercicios, DependsOn: []string{Treinos, Exercicios}},
		EntitySet{Name: Cronogramas, DependsOn: []string{Treinos}},
		EntitySet{Name: ExecucoesTreino, TenantScoped: true, TenantKeyField: TenantKey, DependsOn: []string{Treinos}},
		EntitySet{Name: ExecucoesExercicio, DependsOn: []string{ExecucoesTreino}},
	)
}

// Names returns the entity set names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.sets))
	for i, set := range c.sets {
		names[i] = set.Name
	}
	return names
}

// Sets returns a copy of the entity sets in declaration order.
func (c *Catalog) Sets() []EntitySet {
	out := make([]EntitySet, len(c.sets))
	for i, set := range c.sets {
		out[i] = set
		out[i].DependsOn = append([]string(nil), set.DependsOn...)
	}
	return out
}

// Lookup returns the entity set with the given name.
func (c *Catalog) Lookup(name string) (EntitySet, bool) {
	i, ok := c.index[name]
	if !ok {
		return EntitySet{}, false
	}
	set := c.sets[i]
	set.DependsOn = append([]string(nil), set.DependsOn...)
	return set, true
}

// Contains reports whether name is a cataloged entity set.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Len returns the number of entity sets.
func (c *Catalog) Len() int {
	return len(c.sets)
}

// Resolver returns the dependency resolver computed when the catalog was built.
func (c *Catalog) Resolver() *Resolver {
	return c.resolver
}

// DependsOn reports whether set a has a direct dependency edge on set b.
func (c *Catalog) DependsOn(a, b string) bool {
	i, ok := c.index[a]
	if !ok {
		return false
	}
	for _, dep := range c.sets[i].DependsOn {
		if dep == b {
			return true
		}
	}
	return false
}
