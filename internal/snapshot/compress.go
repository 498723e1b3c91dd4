package snapshot

import (
	"compress/gzip"
	"fmt"
	"io"

	"hiring-data-sync/internal/errors"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType names a body compression algorithm
type CompressionType string

const (
	CompressionNone CompressionType = "none"
	CompressionGzip CompressionType = "gzip"
	CompressionLZ4  CompressionType = "lz4"
	CompressionZstd CompressionType = "zstd"
)

// CompressionConfig selects the body compression of new snapshots
type CompressionConfig struct {
	Algorithm CompressionType `yaml:"algorithm" mapstructure:"algorithm"`
	Level     int             `yaml:"level" mapstructure:"level"`
}

// Validate checks the algorithm name
func (c CompressionConfig) Validate() error {
	switch c.Algorithm {
	case "", CompressionNone, CompressionGzip, CompressionLZ4, CompressionZstd:
		return nil
	}
	return errors.NewConfigurationError(fmt.Sprintf("unsupported compression algorithm %q", c.Algorithm), nil)
}

func (c CompressionConfig) algorithm() CompressionType {
	if c.Algorithm == "" {
		return CompressionNone
	}
	return c.Algorithm
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// newCompressWriter wraps w in a streaming compressor. Closing the returned
// writer flushes the compressor without closing w.
func newCompressWriter(w io.Writer, c CompressionConfig) (io.WriteCloser, error) {
	switch c.algorithm() {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		level := c.Level
		if level < gzip.BestSpeed || level > gzip.BestCompression {
			level = gzip.DefaultCompression
		}
		gw, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return nil, errors.NewSerializationError("failed to create gzip writer", err)
		}
		return gw, nil
	case CompressionLZ4:
		lw := lz4.NewWriter(w)
		if c.Level > 6 {
			if err := lw.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
				return nil, errors.NewSerializationError("failed to set LZ4 high compression", err)
			}
		}
		return lw, nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstdLevel(c.Level)))
		if err != nil {
			return nil, errors.NewSerializationError("failed to create zstd encoder", err)
		}
		return zw, nil
	}
	return nil, errors.NewConfigurationError(fmt.Sprintf("unsupported compression algorithm %q", c.Algorithm), nil)
}

func zstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 3:
		return zstd.SpeedDefault
	case level <= 6:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// newDecompressReader undoes newCompressWriter
func newDecompressReader(r io.Reader, algorithm CompressionType) (io.ReadCloser, error) {
	switch algorithm {
	case "", CompressionNone:
		return io.NopCloser(r), nil
	case CompressionGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.NewStorageReadError("failed to open gzip body", err)
		}
		return gr, nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, errors.NewStorageReadError("failed to open zstd body", err)
		}
		return zr.IOReadCloser(), nil
	}
	return nil, errors.NewStorageReadError(fmt.Sprintf("unsupported compression algorithm %q", algorithm), nil)
}
