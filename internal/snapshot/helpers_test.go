package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"gym-snapshot/internal/catalog"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 3, 15, 10, 30, 0, 123000000, time.UTC)

func fixedClock() time.Time { return fixedTime }

// openTestDB returns a file backed sqlite database with every gym table
// created and foreign keys enforced.
func openTestDB(t *testing.T, opts ...RegistryOption) (*sql.DB, *Registry) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gym.db")
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=1&_busy_timeout=5000")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	registry, err := DefaultRegistry(catalog.Default(), DialectSQLite, opts...)
	require.NoError(t, err)

	for _, stmt := range registry.CreateTableStatements() {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return db, registry
}

// gymFixture is a small two-tenant dataset touching all twelve entity sets.
func gymFixture() map[string][]Record {
	return map[string][]Record{
		catalog.Clientes: {
			{"id": "t1", "nome": "Academia Centro", "email": "centro@gym.test", "plano": "pro", "ativo": true, "createdAt": "2024-01-01T08:00:00Z"},
			{"id": "t2", "nome": "Academia Norte", "email": "norte@gym.test", "plano": "basic", "ativo": false, "createdAt": "2024-01-02T08:00:00Z"},
		},
		catalog.Usuarios: {
			{"id": "u1", "clienteId": "t1", "nome": "Ana", "email": "ana@gym.test", "role": "admin", "ativo": true},
			{"id": "u2", "clienteId": "t2", "nome": "Bruno", "email": "bruno@gym.test", "role": "instrutor", "ativo": true},
		},
		catalog.Permissoes: {
			{"id": "p1", "usuarioId": "u1", "recurso": "alunos", "podeVisualizar": true, "podeCriar": true, "podeEditar": true, "podeExcluir": false},
			{"id": "p2", "usuarioId": "u2", "recurso": "treinos", "podeVisualizar": true, "podeCriar": false, "podeEditar": false, "podeExcluir": false},
		},
		catalog.Alunos: {
			{"id": "a1", "clienteId": "t1", "nome": "Carla", "dataNascimento": "1990-05-20T00:00:00Z", "objetivo": "hipertrofia", "ativo": true},
			{"id": "a2", "clienteId": "t1", "nome": "Diego", "objetivo": "emagrecimento", "ativo": true},
			{"id": "a3", "clienteId": "t2", "nome": "Elisa", "objetivo": "condicionamento", "ativo": false},
		},
		catalog.Medidas: {
			{"id": "m1", "alunoId": "a1", "clienteId": "t1", "data": "2024-02-01T09:00:00Z", "peso": 72.5, "altura": 1.68, "gorduraCorporal": 21.3},
			{"id": "m2", "alunoId": "a3", "clienteId": "t2", "data": "2024-02-02T09:00:00Z", "peso": 60.0, "altura": 1.60},
		},
		catalog.Avaliacoes: {
			{"id": "av1", "alunoId": "a1", "clienteId": "t1", "data": "2024-02-01T09:30:00Z", "tipo": "fisica", "resultado": "bom"},
		},
		catalog.Exercicios: {
			{"id": "e1", "clienteId": "t1", "nome": "Supino", "grupoMuscular": "peito"},
			{"id": "e2", "clienteId": "t2", "nome": "Agachamento", "grupoMuscular": "pernas"},
		},
		catalog.Treinos: {
			{"id": "tr1", "alunoId": "a1", "clienteId": "t1", "nome": "Treino A", "ativo": true},
			{"id": "tr2", "alunoId": "a3", "clienteId": "t2", "nome": "Treino B", "ativo": true},
		},
		catalog.TreinoExercicios: {
			{"id": "te1", "treinoId": "tr1", "exercicioId": "e1", "series": int64(4), "repeticoes": int64(10), "carga": 40.0, "ordem": int64(1)},
			{"id": "te2", "treinoId": "tr2", "exercicioId": "e2", "series": int64(3), "repeticoes": int64(12), "carga": 60.0, "ordem": int64(1)},
		},
		catalog.Cronogramas: {
			{"id": "cr1", "treinoId": "tr1", "diaSemana": int64(1), "horario": "07:00"},
		},
		catalog.ExecucoesTreino: {
			{"id": "ex1", "treinoId": "tr1", "clienteId": "t1", "dataExecucao": "2024-02-03T07:00:00Z", "duracao": int64(55)},
		},
		catalog.ExecucoesExercicio: {
			{"id": "ee1", "execucaoTreinoId": "ex1", "nomeExercicio": "Supino", "seriesRealizadas": int64(4), "repeticoesRealizadas": int64(10), "cargaUtilizada": 40.0},
		},
	}
}

// seed inserts data in dependency order inside one transaction.
func seed(t *testing.T, db *sql.DB, registry *Registry, data map[string][]Record) {
	t.Helper()

	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	for _, name := range registry.Catalog().Resolver().Order() {
		records := data[name]
		if len(records) == 0 {
			continue
		}
		ops, ok := registry.Ops(name)
		require.True(t, ok)
		_, err := ops.BulkInsert(ctx, tx, records)
		if err != nil {
			tx.Rollback()
			require.NoError(t, err, "seeding %s", name)
		}
	}
	require.NoError(t, tx.Commit())
}

// countRows returns the row count of every cataloged table.
func countRows(t *testing.T, db *sql.DB, registry *Registry) map[string]int {
	t.Helper()

	counts := make(map[string]int)
	for _, name := range registry.Catalog().Names() {
		var n int
		require.NoError(t, db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(name))).Scan(&n))
		counts[name] = n
	}
	return counts
}

// storeState serializes every entity set and returns it as canonical JSON,
// so two states can be compared regardless of number representation.
func storeState(t *testing.T, db *sql.DB, registry *Registry) string {
	t.Helper()

	doc, err := NewSerializer(db, registry, WithClock(fixedClock)).
		Serialize(context.Background(), Request{Scope: ScopeFull})
	require.NoError(t, err)

	encoded, err := json.Marshal(doc.Data)
	require.NoError(t, err)
	return string(encoded)
}

// emptyFullDocument carries every entity set with no records.
func emptyFullDocument(cat *catalog.Catalog) *Document {
	data := make(map[string][]Record, cat.Len())
	for _, name := range cat.Names() {
		data[name] = []Record{}
	}
	return &Document{
		Timestamp: fixedTime,
		Scope:     ScopeFull,
		Tables:    cat.Names(),
		Data:      data,
	}
}

func strPtr(s string) *string { return &s }

// memoryProvider is an in-memory StorageProvider that counts calls.
type memoryProvider struct {
	mu      sync.Mutex
	objects map[string][]byte
	calls   int
	failPut error
}

func newMemoryProvider() *memoryProvider {
	return &memoryProvider{objects: make(map[string][]byte)}
}

func (m *memoryProvider) Put(ctx context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failPut != nil {
		return m.failPut
	}
	m.objects[name] = append([]byte(nil), data...)
	return nil
}

func (m *memoryProvider) Get(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	data, ok := m.objects[name]
	if !ok {
		return nil, NewNotFoundError(fmt.Sprintf("snapshot %s not found", name), nil)
	}
	return append([]byte(nil), data...), nil
}

func (m *memoryProvider) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if _, ok := m.objects[name]; !ok {
		return NewNotFoundError(fmt.Sprintf("snapshot %s not found", name), nil)
	}
	delete(m.objects, name)
	return nil
}

func (m *memoryProvider) List(ctx context.Context) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	names := make([]string, 0, len(m.objects))
	for name := range m.objects {
		names = append(names, name)
	}
	sort.Strings(names)

	objects := make([]ObjectInfo, 0, len(names))
	for _, name := range names {
		objects = append(objects, ObjectInfo{Name: name, SizeBytes: int64(len(m.objects[name])), ModifiedAt: fixedTime})
	}
	return objects, nil
}

func (m *memoryProvider) Describe() string { return "memory" }

func (m *memoryProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// failingOps makes one entity set fail a chosen operation.
type failingOps struct {
	next     EntityOps
	failWipe bool
	failAdd  bool
	err      error
}

func (f *failingOps) Read(ctx context.Context, q Querier, tenantID string) ([]Record, error) {
	return f.next.Read(ctx, q, tenantID)
}

func (f *failingOps) DeleteAll(ctx context.Context, q Querier) (int64, error) {
	if f.failWipe {
		return 0, f.err
	}
	return f.next.DeleteAll(ctx, q)
}

func (f *failingOps) BulkInsert(ctx context.Context, q Querier, records []Record) (int64, error) {
	if f.failAdd {
		return 0, f.err
	}
	return f.next.BulkInsert(ctx, q, records)
}
