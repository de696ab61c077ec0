package snapshot

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gym-snapshot/internal/catalog"

	"github.com/google/uuid"
)

// NamePrefix starts every generated snapshot file name.
const NamePrefix = "backup-"

// nameTimeFormat keeps lexical order equal to chronological order.
const nameTimeFormat = "20060102-150405.000"

var snapshotExtensions = NewCompressionManager().Extensions()

// Store persists snapshot documents in a flat namespace over a StorageProvider.
type Store struct {
	provider    StorageProvider
	catalog     *catalog.Catalog
	compression *CompressionManager
	algorithm   CompressionType
	level       int
	logger      *SnapshotLogger
	now         func() time.Time
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithCompression compresses new snapshot files. Loading always auto-detects.
func WithCompression(algorithm CompressionType, level int) StoreOption {
	return func(s *Store) {
		s.algorithm = algorithm
		s.level = level
	}
}

// WithStoreLogger attaches a logger
func WithStoreLogger(logger *SnapshotLogger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithStoreClock replaces the time source used for generated names.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store over provider. Documents are checked against cat
// when saved and when loaded.
func NewStore(provider StorageProvider, cat *catalog.Catalog, opts ...StoreOption) *Store {
	s := &Store{
		provider:    provider,
		catalog:     cat,
		compression: NewCompressionManager(),
		algorithm:   CompressionTypeNone,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Describe returns the location of the underlying provider.
func (s *Store) Describe() string {
	return s.provider.Describe()
}

// List returns the stored snapshots sorted by name, newest first. Objects
// whose names are not snapshot names are ignored.
func (s *Store) List(ctx context.Context) (infos []SnapshotInfo, err error) {
	done := s.logger.LogOperation("snapshot_list", map[string]interface{}{
		"store": s.provider.Describe(),
	})
	defer func() { done(err, map[string]interface{}{"count": len(infos)}) }()

	objects, err := s.provider.List(ctx)
	if err != nil {
		return nil, classifyStoreError(ctx, "failed to list snapshots", err)
	}

	infos = make([]SnapshotInfo, 0, len(objects))
	for _, obj := range objects {
		if ValidateName(obj.Name) != nil {
			continue
		}
		info := SnapshotInfo{
			Name:        obj.Name,
			SizeBytes:   obj.SizeBytes,
			ModifiedAt:  obj.ModifiedAt,
			Compression: compressionFromName(obj.Name),
		}
		if scope, createdAt, ok := ParseName(obj.Name); ok {
			info.Scope = scope
			info.CreatedAt = &createdAt
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name > infos[j].Name
	})

	return infos, nil
}

// Save writes a document under a freshly generated name and returns that name.
func (s *Store) Save(ctx context.Context, doc *Document) (result *SaveResult, err error) {
	if doc == nil {
		return nil, NewInvalidRequestError("document cannot be nil", nil)
	}

	done := s.logger.LogOperation("snapshot_save", map[string]interface{}{
		"scope":     string(doc.Scope),
		"tenant_id": doc.tenantLabel(),
		"records":   doc.RowCount(),
	})
	defer func() {
		var fields map[string]interface{}
		if result != nil {
			fields = map[string]interface{}{"name": result.Name}
		}
		done(err, fields)
	}()

	if err := doc.Validate(s.catalog); err != nil {
		return nil, err
	}

	payload, err := doc.ToJSON()
	if err != nil {
		return nil, NewInvalidFormatError("failed to encode snapshot document", err)
	}

	compressed, stats, err := s.compression.Compress(payload, s.algorithm, s.level)
	if err != nil {
		return nil, err
	}

	name := GenerateName(doc.Scope, s.now(), s.compression.Extension(stats.Algorithm))
	if err := s.provider.Put(ctx, name, compressed); err != nil {
		return nil, classifyStoreError(ctx, fmt.Sprintf("failed to write snapshot %s", name), err)
	}

	return &SaveResult{
		Name:    name,
		Summary: doc.Summary(),
		Stats:   stats,
	}, nil
}

// Load reads and parses a stored snapshot.
func (s *Store) Load(ctx context.Context, name string) (doc *Document, err error) {
	done := s.logger.LogOperation("snapshot_load", map[string]interface{}{"name": name})
	defer func() { done(err, nil) }()

	data, err := s.Download(ctx, name)
	if err != nil {
		return nil, err
	}

	doc, err = s.Parse(data)
	if err != nil {
		if snapErr, ok := err.(*SnapshotError); ok {
			return nil, snapErr.WithContext("name", name)
		}
		return nil, err
	}
	return doc, nil
}

// Download returns the stored bytes of a snapshot unchanged.
func (s *Store) Download(ctx context.Context, name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	data, err := s.provider.Get(ctx, name)
	if err != nil {
		return nil, classifyStoreError(ctx, fmt.Sprintf("failed to read snapshot %s", name), err)
	}
	return data, nil
}

// Delete removes a stored snapshot.
func (s *Store) Delete(ctx context.Context, name string) (err error) {
	done := s.logger.LogOperation("snapshot_delete", map[string]interface{}{"name": name})
	defer func() { done(err, nil) }()

	if err := ValidateName(name); err != nil {
		return err
	}

	if err := s.provider.Delete(ctx, name); err != nil {
		return classifyStoreError(ctx, fmt.Sprintf("failed to delete snapshot %s", name), err)
	}
	return nil
}

// Parse decodes a document supplied by the caller, such as an uploaded file,
// with the same rules as Load. Compressed input is detected automatically.
func (s *Store) Parse(data []byte) (*Document, error) {
	plain, _, err := s.compression.Decode(data)
	if err != nil {
		return nil, err
	}

	doc, err := ParseDocument(plain)
	if err != nil {
		return nil, err
	}

	if err := doc.Validate(s.catalog); err != nil {
		return nil, err
	}
	return doc, nil
}

// GenerateName builds a snapshot file name from the scope and a millisecond
// timestamp. A random suffix keeps concurrent saves apart.
func GenerateName(scope Scope, at time.Time, extension string) string {
	if extension == "" {
		extension = DocumentExtension
	}
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s%s-%s-%s%s", NamePrefix, at.UTC().Format(nameTimeFormat), scope, suffix, extension)
}

// ParseName extracts the scope and creation time from a generated name.
func ParseName(name string) (Scope, time.Time, bool) {
	base := strings.TrimPrefix(name, NamePrefix)
	if base == name {
		return "", time.Time{}, false
	}
	if ext := matchExtension(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}

	// <date>-<time.ms>-<scope>-<suffix>
	parts := strings.Split(base, "-")
	if len(parts) != 4 {
		return "", time.Time{}, false
	}
	createdAt, err := time.Parse(nameTimeFormat, parts[0]+"-"+parts[1])
	if err != nil {
		return "", time.Time{}, false
	}
	scope := Scope(parts[2])
	if scope != ScopeFull && scope != ScopeSelective {
		return "", time.Time{}, false
	}
	return scope, createdAt.UTC(), true
}

// ValidateName is the containment check for snapshot names. A name must be a
// single path element carrying a snapshot extension; anything that could
// resolve outside the namespace is rejected, never corrected.
func ValidateName(name string) error {
	reject := func(reason string) error {
		return NewPathRejectedError(fmt.Sprintf("snapshot name %q rejected: %s", name, reason), nil).
			WithContext("name", name)
	}

	switch {
	case strings.TrimSpace(name) == "":
		return reject("empty name")
	case strings.ContainsAny(name, "/\\"):
		return reject("path separators are not allowed")
	case strings.Contains(name, ".."):
		return reject("parent references are not allowed")
	case strings.ContainsRune(name, 0):
		return reject("NUL bytes are not allowed")
	case filepath.IsAbs(name) || filepath.VolumeName(name) != "":
		return reject("absolute paths are not allowed")
	case strings.HasPrefix(name, "."):
		return reject("hidden files are not allowed")
	case matchExtension(name) == "":
		return reject("not a snapshot file")
	}

	if filepath.Base(name) != name {
		return reject("name must be a single path element")
	}
	return nil
}

// matchExtension returns the longest snapshot extension name ends with.
func matchExtension(name string) string {
	match := ""
	for _, ext := range snapshotExtensions {
		if strings.HasSuffix(name, ext) && len(ext) > len(match) && len(name) > len(ext) {
			match = ext
		}
	}
	return match
}

func compressionFromName(name string) CompressionType {
	switch {
	case strings.HasSuffix(name, ".gz"):
		return CompressionTypeGzip
	case strings.HasSuffix(name, ".lz4"):
		return CompressionTypeLZ4
	case strings.HasSuffix(name, ".zst"):
		return CompressionTypeZstd
	default:
		return CompressionTypeNone
	}
}
