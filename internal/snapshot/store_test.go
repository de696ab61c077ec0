package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"gym-snapshot/internal/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var generatedName = regexp.MustCompile(`^backup-\d{8}-\d{6}\.\d{3}-(completo|seletivo)-[0-9a-f]{8}\.json(\.gz|\.lz4|\.zst)?$`)

func newLocalStore(t *testing.T, opts ...StoreOption) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	provider, err := NewLocalStorageProvider(&LocalConfig{BasePath: dir, Permissions: 0755})
	require.NoError(t, err)
	return NewStore(provider, catalog.Default(), opts...), dir
}

func TestStore_SaveAndLoad(t *testing.T) {
	store, dir := newLocalStore(t, WithStoreClock(fixedClock))
	ctx := context.Background()

	doc := &Document{
		Timestamp: fixedTime,
		Scope:     ScopeSelective,
		TenantID:  strPtr("t1"),
		Tables:    []string{catalog.Alunos},
		Data:      map[string][]Record{catalog.Alunos: {{"id": "a1", "clienteId": "t1", "nome": "Carla"}}},
	}

	saved, err := store.Save(ctx, doc)
	require.NoError(t, err)
	assert.Regexp(t, generatedName, saved.Name)
	assert.Contains(t, saved.Name, "backup-20240315-103000.123-seletivo-")
	assert.Equal(t, map[string]int{catalog.Alunos: 1}, saved.Summary)

	_, err = os.Stat(filepath.Join(dir, saved.Name))
	require.NoError(t, err)

	loaded, err := store.Load(ctx, saved.Name)
	require.NoError(t, err)
	assert.Equal(t, ScopeSelective, loaded.Scope)
	require.NotNil(t, loaded.TenantID)
	assert.Equal(t, "t1", *loaded.TenantID)
	assert.Equal(t, fixedTime, loaded.Timestamp)
	assert.Equal(t, "Carla", loaded.Data[catalog.Alunos][0]["nome"])
}

func TestStore_SaveCompressed(t *testing.T) {
	for _, algorithm := range []CompressionType{CompressionTypeGzip, CompressionTypeLZ4, CompressionTypeZstd} {
		t.Run(string(algorithm), func(t *testing.T) {
			store, _ := newLocalStore(t, WithCompression(algorithm, 0))
			ctx := context.Background()

			doc := emptyFullDocument(catalog.Default())
			doc.Data[catalog.Clientes] = []Record{{"id": "t1", "nome": "Academia Centro"}}

			saved, err := store.Save(ctx, doc)
			require.NoError(t, err)
			assert.Regexp(t, generatedName, saved.Name)
			assert.Equal(t, algorithm, saved.Stats.Algorithm)

			loaded, err := store.Load(ctx, saved.Name)
			require.NoError(t, err)
			assert.Equal(t, "Academia Centro", loaded.Data[catalog.Clientes][0]["nome"])

			infos, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, infos, 1)
			assert.Equal(t, algorithm, infos[0].Compression)
		})
	}
}

func TestStore_SaveRejectsInconsistentDocument(t *testing.T) {
	provider := newMemoryProvider()
	store := NewStore(provider, catalog.Default())

	doc := &Document{Scope: ScopeSelective, Tables: []string{"pagamentos"}, Data: map[string][]Record{"pagamentos": {}}}
	_, err := store.Save(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, IsInvalidFormat(err))
	assert.Zero(t, provider.callCount())
}

func TestStore_SaveWriteFailureIsStoreIO(t *testing.T) {
	provider := newMemoryProvider()
	provider.failPut = errors.New("disk full")
	store := NewStore(provider, catalog.Default())

	_, err := store.Save(context.Background(), emptyFullDocument(catalog.Default()))
	require.Error(t, err)
	assert.True(t, IsStoreIOFailure(err))
}

func TestStore_ListNewestFirst(t *testing.T) {
	clock := fixedTime
	store, dir := newLocalStore(t, WithStoreClock(func() time.Time { return clock }))
	ctx := context.Background()

	var names []string
	for i := 0; i < 3; i++ {
		saved, err := store.Save(ctx, emptyFullDocument(catalog.Default()))
		require.NoError(t, err)
		names = append(names, saved.Name)
		clock = clock.Add(time.Second)
	}

	// Foreign files and directories are not snapshots
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.json"), []byte("{}"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "old.json"), 0755))

	infos, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 3)

	assert.Equal(t, names[2], infos[0].Name)
	assert.Equal(t, names[1], infos[1].Name)
	assert.Equal(t, names[0], infos[2].Name)

	assert.Equal(t, ScopeFull, infos[0].Scope)
	require.NotNil(t, infos[0].CreatedAt)
	assert.Equal(t, fixedTime.Add(2*time.Second), *infos[0].CreatedAt)
	assert.Positive(t, infos[0].SizeBytes)
}

func TestStore_ListEmpty(t *testing.T) {
	store, _ := newLocalStore(t)

	infos, err := store.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, infos)
	assert.Empty(t, infos)
}

func TestStore_PathSafety(t *testing.T) {
	store, dir := newLocalStore(t)
	ctx := context.Background()

	outside := filepath.Join(filepath.Dir(dir), "outside.json")
	require.NoError(t, os.WriteFile(outside, []byte(`{"data":{}}`), 0644))

	names := []string{
		"../../etc/passwd",
		"../outside.json",
		"..",
		"",
		"/etc/passwd",
		"sub/backup.json",
		`..\backup.json`,
		".hidden.json",
		"backup-20240315-103000.123-completo-abcd1234.txt",
		"backup.json\x00.txt",
	}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(ctx, name)
			require.Error(t, err)
			assert.True(t, IsPathRejected(err), "load: expected PATH_REJECTED, got %v", err)

			_, err = store.Download(ctx, name)
			assert.True(t, IsPathRejected(err), "download: expected PATH_REJECTED, got %v", err)

			err = store.Delete(ctx, name)
			assert.True(t, IsPathRejected(err), "delete: expected PATH_REJECTED, got %v", err)
		})
	}

	_, err := os.Stat(outside)
	assert.NoError(t, err, "file outside the store must survive")
}

func TestStore_MissingSnapshotIsNotFound(t *testing.T) {
	store, _ := newLocalStore(t)
	ctx := context.Background()

	_, err := store.Load(ctx, "backup-20240315-103000.123-completo-abcd1234.json")
	assert.True(t, IsNotFound(err))

	err = store.Delete(ctx, "backup-20240315-103000.123-completo-abcd1234.json")
	assert.True(t, IsNotFound(err))
}

func TestStore_Delete(t *testing.T) {
	store, dir := newLocalStore(t)
	ctx := context.Background()

	saved, err := store.Save(ctx, emptyFullDocument(catalog.Default()))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, saved.Name))
	_, err = os.Stat(filepath.Join(dir, saved.Name))
	assert.True(t, os.IsNotExist(err))
}

func TestStore_LoadCorruptFile(t *testing.T) {
	store, dir := newLocalStore(t)
	name := "backup-20240315-103000.123-completo-abcd1234.json"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("not json"), 0644))

	_, err := store.Load(context.Background(), name)
	require.Error(t, err)
	assert.True(t, IsInvalidFormat(err))

	var snapErr *SnapshotError
	require.True(t, errors.As(err, &snapErr))
	assert.Equal(t, name, snapErr.Context["name"])
}

func TestStore_Parse(t *testing.T) {
	store := NewStore(newMemoryProvider(), catalog.Default())

	doc, err := store.Parse([]byte(`{"tipo":"seletivo","clienteId":"t1","tabelas":["alunos"],"data":{"alunos":[]}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{catalog.Alunos}, doc.Tables)

	_, err = store.Parse([]byte(`{"tipo":"seletivo","tabelas":["alunos"]}`))
	assert.True(t, IsInvalidFormat(err))

	_, err = store.Parse([]byte(`{"tipo":"seletivo","tabelas":["pagamentos"],"data":{"pagamentos":[]}}`))
	assert.True(t, IsInvalidFormat(err))

	// An upload declared for one tenant cannot carry rows of another
	_, err = store.Parse([]byte(`{"tipo":"seletivo","clienteId":"t1","tabelas":["alunos"],"data":{"alunos":[{"id":"a9","clienteId":"t2"}]}}`))
	require.Error(t, err)
	assert.True(t, IsInvalidFormat(err))
	assert.Contains(t, err.Error(), "belongs to tenant t2")
}

func TestGenerateAndParseName(t *testing.T) {
	name := GenerateName(ScopeFull, fixedTime, ".json.gz")
	assert.Regexp(t, generatedName, name)

	scope, createdAt, ok := ParseName(name)
	require.True(t, ok)
	assert.Equal(t, ScopeFull, scope)
	assert.Equal(t, fixedTime, createdAt)

	assert.NotEqual(t, name, GenerateName(ScopeFull, fixedTime, ".json.gz"), "same millisecond must still give distinct names")

	_, _, ok = ParseName("snapshot.json")
	assert.False(t, ok)
	_, _, ok = ParseName("backup-20240315-103000.123-parcial-abcd1234.json")
	assert.False(t, ok)
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("backup-20240315-103000.123-completo-abcd1234.json"))
	assert.NoError(t, ValidateName("uploaded.json.zst"))
	assert.True(t, IsPathRejected(ValidateName(".json")))
	assert.True(t, IsPathRejected(ValidateName("a/../b.json")))
}
