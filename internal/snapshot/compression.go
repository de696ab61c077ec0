package snapshot

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType represents the codec applied to a stored snapshot file
type CompressionType string

const (
	CompressionTypeNone CompressionType = "none"
	CompressionTypeGzip CompressionType = "gzip"
	CompressionTypeLZ4  CompressionType = "lz4"
	CompressionTypeZstd CompressionType = "zstd"
)

// DocumentExtension is the suffix of every snapshot file before compression.
const DocumentExtension = ".json"

// CompressionStats contains statistics about one compression run
type CompressionStats struct {
	OriginalSize     int64           `json:"original_size"`
	CompressedSize   int64           `json:"compressed_size"`
	CompressionRatio float64         `json:"compression_ratio"`
	Algorithm        CompressionType `json:"algorithm"`
	Level            int             `json:"level"`
	Duration         time.Duration   `json:"duration"`
}

// Compressor is one snapshot file codec
type Compressor interface {
	Compress(data []byte, level int) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() CompressionType
	// Extension is appended after DocumentExtension in file names.
	Extension() string
	// Magic is the frame header used to recognise the codec.
	Magic() []byte
	DefaultLevel() int
	LevelRange() (lo, hi int)
}

// CompressionManager picks a codec for writing and detects it for reading
type CompressionManager struct {
	compressors map[CompressionType]Compressor
	order       []CompressionType
}

// NewCompressionManager creates a manager with gzip, lz4 and zstd registered
func NewCompressionManager() *CompressionManager {
	cm := &CompressionManager{
		compressors: make(map[CompressionType]Compressor),
	}
	for _, c := range []Compressor{&GzipCompressor{}, &LZ4Compressor{}, &ZstdCompressor{}} {
		cm.compressors[c.Algorithm()] = c
		cm.order = append(cm.order, c.Algorithm())
	}
	return cm
}

// ParseCompressionType normalises a configured algorithm name.
func ParseCompressionType(value string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none", "off":
		return CompressionTypeNone, nil
	case "gzip", "gz":
		return CompressionTypeGzip, nil
	case "lz4":
		return CompressionTypeLZ4, nil
	case "zstd", "zst":
		return CompressionTypeZstd, nil
	default:
		return "", NewConfigurationError(fmt.Sprintf("unsupported compression algorithm: %s", value), nil)
	}
}

// Compress encodes data with the algorithm. Zero or out-of-range levels fall back to the codec default.
func (cm *CompressionManager) Compress(data []byte, algorithm CompressionType, level int) ([]byte, *CompressionStats, error) {
	start := time.Now()
	stats := &CompressionStats{
		OriginalSize: int64(len(data)),
		Algorithm:    algorithm,
	}

	if algorithm == CompressionTypeNone || algorithm == "" {
		stats.Algorithm = CompressionTypeNone
		stats.CompressedSize = int64(len(data))
		stats.CompressionRatio = 1.0
		return data, stats, nil
	}

	compressor, ok := cm.compressors[algorithm]
	if !ok {
		return nil, nil, NewConfigurationError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}

	lo, hi := compressor.LevelRange()
	if level == 0 || level < lo || level > hi {
		level = compressor.DefaultLevel()
	}

	compressed, err := compressor.Compress(data, level)
	if err != nil {
		return nil, nil, err
	}

	stats.Level = level
	stats.CompressedSize = int64(len(compressed))
	stats.CompressionRatio = CalculateCompressionRatio(stats.OriginalSize, stats.CompressedSize)
	stats.Duration = time.Since(start)
	return compressed, stats, nil
}

// Detect recognises the codec of stored bytes by their frame header.
func (cm *CompressionManager) Detect(data []byte) CompressionType {
	for _, algorithm := range cm.order {
		if bytes.HasPrefix(data, cm.compressors[algorithm].Magic()) {
			return algorithm
		}
	}
	return CompressionTypeNone
}

// Decode detects the codec and returns the plain document bytes.
func (cm *CompressionManager) Decode(data []byte) ([]byte, CompressionType, error) {
	algorithm := cm.Detect(data)
	if algorithm == CompressionTypeNone {
		return data, algorithm, nil
	}
	plain, err := cm.compressors[algorithm].Decompress(data)
	if err != nil {
		return nil, algorithm, err
	}
	return plain, algorithm, nil
}

// Extension returns the full file suffix for an algorithm, e.g. ".json.zst".
func (cm *CompressionManager) Extension(algorithm CompressionType) string {
	if compressor, ok := cm.compressors[algorithm]; ok {
		return DocumentExtension + compressor.Extension()
	}
	return DocumentExtension
}

// Extensions returns every file suffix a snapshot may carry.
func (cm *CompressionManager) Extensions() []string {
	exts := []string{DocumentExtension}
	for _, algorithm := range cm.order {
		exts = append(exts, DocumentExtension+cm.compressors[algorithm].Extension())
	}
	return exts
}

// CalculateCompressionRatio calculates the compression ratio
func CalculateCompressionRatio(originalSize, compressedSize int64) float64 {
	if originalSize == 0 {
		return 1.0
	}
	return float64(compressedSize) / float64(originalSize)
}

// GzipCompressor implements gzip compression
type GzipCompressor struct{}

func (gc *GzipCompressor) Compress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write gzip data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (gc *GzipCompressor) Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, NewInvalidFormatError("failed to open gzip snapshot", err)
	}
	defer reader.Close()

	plain, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewInvalidFormatError("failed to decompress gzip snapshot", err)
	}
	return plain, nil
}

func (gc *GzipCompressor) Algorithm() CompressionType { return CompressionTypeGzip }

func (gc *GzipCompressor) Extension() string { return ".gz" }

func (gc *GzipCompressor) Magic() []byte { return []byte{0x1f, 0x8b} }

func (gc *GzipCompressor) DefaultLevel() int { return gzip.DefaultCompression }

func (gc *GzipCompressor) LevelRange() (int, int) { return gzip.HuffmanOnly, gzip.BestCompression }

// LZ4Compressor implements LZ4 frame compression
type LZ4Compressor struct{}

func (lc *LZ4Compressor) Compress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)

	// lz4 only distinguishes fast and high compression in practice
	if level > 6 {
		if err := writer.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return nil, fmt.Errorf("failed to set lz4 compression level: %w", err)
		}
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write lz4 data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close lz4 writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (lc *LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	plain, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, NewInvalidFormatError("failed to decompress lz4 snapshot", err)
	}
	return plain, nil
}

func (lc *LZ4Compressor) Algorithm() CompressionType { return CompressionTypeLZ4 }

func (lc *LZ4Compressor) Extension() string { return ".lz4" }

func (lc *LZ4Compressor) Magic() []byte { return []byte{0x04, 0x22, 0x4d, 0x18} }

func (lc *LZ4Compressor) DefaultLevel() int { return 1 }

func (lc *LZ4Compressor) LevelRange() (int, int) { return 1, 12 }

// ZstdCompressor implements Zstandard compression
type ZstdCompressor struct{}

func (zc *ZstdCompressor) Compress(data []byte, level int) ([]byte, error) {
	encoderLevel := zstd.SpeedDefault
	switch {
	case level <= 1:
		encoderLevel = zstd.SpeedFastest
	case level <= 3:
		encoderLevel = zstd.SpeedDefault
	case level <= 6:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encoderLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func (zc *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()

	plain, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, NewInvalidFormatError("failed to decompress zstd snapshot", err)
	}
	return plain, nil
}

func (zc *ZstdCompressor) Algorithm() CompressionType { return CompressionTypeZstd }

func (zc *ZstdCompressor) Extension() string { return ".zst" }

func (zc *ZstdCompressor) Magic() []byte { return []byte{0x28, 0xb5, 0x2f, 0xfd} }

func (zc *ZstdCompressor) DefaultLevel() int { return 3 }

func (zc *ZstdCompressor) LevelRange() (int, int) { return 1, 22 }
