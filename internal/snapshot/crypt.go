package snapshot

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"hiring-data-sync/internal/errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	algorithmAESGCM = "AES-256-GCM"

	KeySourceEnv        = "env"
	KeySourceFile       = "file"
	KeySourcePassphrase = "passphrase"

	keySize          = 32
	saltSize         = 16
	pbkdf2Iterations = 100000
	segmentSize      = 64 << 10
)

// EncryptionConfig describes where the snapshot key comes from
type EncryptionConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	KeySource string `yaml:"key_source" mapstructure:"key_source"`
	// KeyEnvVar holds a hex key for "env", or the passphrase for "passphrase"
	KeyEnvVar string `yaml:"key_env_var" mapstructure:"key_env_var"`
	KeyPath   string `yaml:"key_path" mapstructure:"key_path"`
}

// Validate checks that the configured key source is complete
func (c *EncryptionConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	switch c.KeySource {
	case KeySourceEnv, KeySourcePassphrase:
		if c.KeyEnvVar == "" {
			return errors.NewConfigurationError("key_env_var is required for key source "+c.KeySource, nil)
		}
	case KeySourceFile:
		if c.KeyPath == "" {
			return errors.NewConfigurationError("key_path is required for key source file", nil)
		}
	default:
		return errors.NewConfigurationError(fmt.Sprintf("unsupported key source %q", c.KeySource), nil)
	}
	return nil
}

// key resolves the AES-256 key. salt is only used for passphrase derivation.
func (c *EncryptionConfig) key(keySource string, salt []byte) ([]byte, error) {
	switch keySource {
	case KeySourceEnv:
		raw := strings.TrimSpace(os.Getenv(c.KeyEnvVar))
		if raw == "" {
			return nil, errors.NewConfigurationError(fmt.Sprintf("environment variable %s not set", c.KeyEnvVar), nil)
		}
		key, err := hex.DecodeString(raw)
		if err != nil {
			return nil, errors.NewConfigurationError("failed to decode hex key from environment variable", err)
		}
		return checkKey(key)
	case KeySourceFile:
		key, err := os.ReadFile(c.KeyPath)
		if err != nil {
			return nil, errors.NewConfigurationError("failed to read key file", err)
		}
		return checkKey(key)
	case KeySourcePassphrase:
		pass := os.Getenv(c.KeyEnvVar)
		if pass == "" {
			return nil, errors.NewConfigurationError(fmt.Sprintf("environment variable %s not set", c.KeyEnvVar), nil)
		}
		if len(salt) == 0 {
			return nil, errors.NewStorageReadError("passphrase-sealed snapshot has no salt", nil)
		}
		return pbkdf2.Key([]byte(pass), salt, pbkdf2Iterations, keySize, sha256.New), nil
	}
	return nil, errors.NewConfigurationError(fmt.Sprintf("unsupported key source %q", keySource), nil)
}

func checkKey(key []byte) ([]byte, error) {
	if len(key) != keySize {
		return nil, errors.NewConfigurationError(fmt.Sprintf("key must be %d bytes for AES-256, got %d", keySize, len(key)), nil)
	}
	return key, nil
}

// newEncryptionHeader prepares the header entry and key for a new snapshot
func (c *EncryptionConfig) newEncryptionHeader() (*EncryptionHeader, []byte, error) {
	h := &EncryptionHeader{Algorithm: algorithmAESGCM, KeySource: c.KeySource}
	if c.KeySource == KeySourcePassphrase {
		h.Salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, h.Salt); err != nil {
			return nil, nil, errors.NewSerializationError("failed to generate salt", err)
		}
	}
	key, err := c.key(c.KeySource, h.Salt)
	if err != nil {
		return nil, nil, err
	}
	return h, key, nil
}

// Sealed body layout: a sequence of segments
//
//	[final:1][len:4 BE][nonce][ciphertext]
//
// Each segment is authenticated with its index and final flag, so dropped,
// reordered or truncated segments fail to open.
func segmentAAD(index uint64, final bool) []byte {
	aad := make([]byte, 9)
	binary.BigEndian.PutUint64(aad, index)
	if final {
		aad[8] = 1
	}
	return aad
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

type sealWriter struct {
	w     io.Writer
	aead  cipher.AEAD
	buf   []byte
	index uint64
	done  bool
}

func newSealWriter(w io.Writer, key []byte) (*sealWriter, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, errors.NewSerializationError("failed to create AES-GCM cipher", err)
	}
	return &sealWriter{w: w, aead: aead, buf: make([]byte, 0, segmentSize)}, nil
}

func (s *sealWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := copy(s.buf[len(s.buf):cap(s.buf)], p)
		s.buf = s.buf[:len(s.buf)+n]
		p = p[n:]
		written += n
		if len(s.buf) == cap(s.buf) {
			if err := s.flush(false); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (s *sealWriter) flush(final bool) error {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return errors.NewSerializationError("failed to generate nonce", err)
	}
	sealed := s.aead.Seal(nonce, nonce, s.buf, segmentAAD(s.index, final))

	var head [5]byte
	if final {
		head[0] = 1
	}
	binary.BigEndian.PutUint32(head[1:], uint32(len(sealed)))
	if _, err := s.w.Write(head[:]); err != nil {
		return err
	}
	if _, err := s.w.Write(sealed); err != nil {
		return err
	}

	s.index++
	s.buf = s.buf[:0]
	return nil
}

// Close writes the final segment
func (s *sealWriter) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.flush(true)
}

type openReader struct {
	r     io.Reader
	aead  cipher.AEAD
	buf   []byte
	index uint64
	final bool
}

func newOpenReader(r io.Reader, key []byte) (*openReader, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, errors.NewStorageReadError("failed to create AES-GCM cipher", err)
	}
	return &openReader{r: r, aead: aead}, nil
}

func (o *openReader) Read(p []byte) (int, error) {
	for len(o.buf) == 0 {
		if o.final {
			var extra [1]byte
			if n, _ := o.r.Read(extra[:]); n > 0 {
				return 0, errors.NewStorageReadError("data after final sealed segment", nil)
			}
			return 0, io.EOF
		}
		if err := o.next(); err != nil {
			return 0, err
		}
	}
	n := copy(p, o.buf)
	o.buf = o.buf[n:]
	return n, nil
}

func (o *openReader) next() error {
	var head [5]byte
	if _, err := io.ReadFull(o.r, head[:]); err != nil {
		return errors.NewStorageReadError("sealed body truncated", err)
	}
	final := head[0] == 1
	length := binary.BigEndian.Uint32(head[1:])
	nonceSize := o.aead.NonceSize()
	if int(length) < nonceSize+o.aead.Overhead() || length > segmentSize+uint32(nonceSize+o.aead.Overhead()) {
		return errors.NewStorageReadError(fmt.Sprintf("corrupted sealed segment length %d", length), nil)
	}

	sealed := make([]byte, length)
	if _, err := io.ReadFull(o.r, sealed); err != nil {
		return errors.NewStorageReadError("sealed segment truncated", err)
	}

	plain, err := o.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], segmentAAD(o.index, final))
	if err != nil {
		return errors.NewStorageReadError("failed to decrypt snapshot segment", err)
	}

	o.index++
	o.final = final
	o.buf = plain
	return nil
}
