package snapshot

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionManager_RoundTrip(t *testing.T) {
	cm := NewCompressionManager()
	payload := []byte(strings.Repeat(`{"id":"a1","nome":"Carla","clienteId":"t1"},`, 200))

	for _, algorithm := range []CompressionType{CompressionTypeGzip, CompressionTypeLZ4, CompressionTypeZstd} {
		t.Run(string(algorithm), func(t *testing.T) {
			compressed, stats, err := cm.Compress(payload, algorithm, 0)
			require.NoError(t, err)

			assert.Equal(t, algorithm, stats.Algorithm)
			assert.Equal(t, int64(len(payload)), stats.OriginalSize)
			assert.Less(t, stats.CompressedSize, stats.OriginalSize)
			assert.Less(t, stats.CompressionRatio, 1.0)
			assert.NotZero(t, stats.Level)

			assert.Equal(t, algorithm, cm.Detect(compressed))

			plain, detected, err := cm.Decode(compressed)
			require.NoError(t, err)
			assert.Equal(t, algorithm, detected)
			assert.Equal(t, payload, plain)
		})
	}
}

func TestCompressionManager_None(t *testing.T) {
	cm := NewCompressionManager()
	payload := []byte(`{"data":{}}`)

	out, stats, err := cm.Compress(payload, CompressionTypeNone, 9)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
	assert.Equal(t, 1.0, stats.CompressionRatio)
	assert.Equal(t, 0, stats.Level)

	plain, detected, err := cm.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, CompressionTypeNone, detected)
	assert.Equal(t, payload, plain)
}

func TestCompressionManager_OutOfRangeLevelUsesDefault(t *testing.T) {
	cm := NewCompressionManager()

	_, stats, err := cm.Compress([]byte("abc"), CompressionTypeGzip, 42)
	require.NoError(t, err)
	assert.Equal(t, (&GzipCompressor{}).DefaultLevel(), stats.Level)
}

func TestCompressionManager_UnsupportedAlgorithm(t *testing.T) {
	cm := NewCompressionManager()

	_, _, err := cm.Compress([]byte("abc"), CompressionType("brotli"), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported compression algorithm")
}

func TestCompressionManager_CorruptFrameIsInvalidFormat(t *testing.T) {
	cm := NewCompressionManager()

	corrupt := append([]byte{0x28, 0xb5, 0x2f, 0xfd}, bytes.Repeat([]byte{0xff}, 32)...)
	_, detected, err := cm.Decode(corrupt)
	require.Error(t, err)
	assert.Equal(t, CompressionTypeZstd, detected)
	assert.True(t, IsInvalidFormat(err))
}

func TestCompressionManager_Extensions(t *testing.T) {
	cm := NewCompressionManager()

	assert.Equal(t, []string{".json", ".json.gz", ".json.lz4", ".json.zst"}, cm.Extensions())
	assert.Equal(t, ".json.zst", cm.Extension(CompressionTypeZstd))
	assert.Equal(t, ".json", cm.Extension(CompressionTypeNone))
}

func TestParseCompressionType(t *testing.T) {
	tests := []struct {
		input   string
		want    CompressionType
		wantErr bool
	}{
		{input: "", want: CompressionTypeNone},
		{input: "off", want: CompressionTypeNone},
		{input: "GZIP", want: CompressionTypeGzip},
		{input: "gz", want: CompressionTypeGzip},
		{input: "lz4", want: CompressionTypeLZ4},
		{input: " zst ", want: CompressionTypeZstd},
		{input: "brotli", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCompressionType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculateCompressionRatio(t *testing.T) {
	assert.Equal(t, 1.0, CalculateCompressionRatio(0, 0))
	assert.Equal(t, 0.25, CalculateCompressionRatio(400, 100))
}
