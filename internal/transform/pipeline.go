// Package transform applies the reversible byte transforms that turn a
// bundle into a stored artifact: compression first, then authenticated
// encryption. The inverse reads the artifact header and undoes exactly
// the recorded steps.
package transform

import (
	"errors"
	"fmt"
	"os"

	"github.com/kebairia/markabak/internal/fsutil"
)

var (
	// ErrProcessing wraps every failure of the pipeline.
	ErrProcessing = errors.New("backup processing failed")
	// ErrFormat indicates the input is not a well-formed artifact.
	ErrFormat = errors.New("invalid artifact format")
	// ErrDecrypt indicates authentication failed: wrong key or tampering.
	ErrDecrypt = errors.New("decryption failed: wrong key or corrupted artifact")
	// ErrKeyRequired is returned when encryption is requested or needed
	// but no key was configured.
	ErrKeyRequired = errors.New("encryption key is not configured")
)

// Options selects the forward transforms. The zero value applies none;
// DefaultOptions applies both.
type Options struct {
	Compress bool
	Encrypt  bool
}

func DefaultOptions() Options {
	return Options{Compress: true, Encrypt: true}
}

// Pipeline holds the codec and key shared by forward and inverse runs.
type Pipeline struct {
	codec Codec
	key   []byte
}

type Option func(*Pipeline)

// WithCodec overrides the compression codec (zlib by default).
func WithCodec(c Codec) Option {
	return func(p *Pipeline) {
		if c != CodecNone {
			p.codec = c
		}
	}
}

// WithKey sets the encryption secret. An empty key leaves encryption
// unavailable.
func WithKey(key string) Option {
	return func(p *Pipeline) {
		if key != "" {
			p.key = []byte(key)
		}
	}
}

func New(opts ...Option) *Pipeline {
	p := &Pipeline{codec: CodecZlib}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HasKey reports whether an encryption key is configured.
func (p *Pipeline) HasKey() bool { return len(p.key) > 0 }

// Encode turns bundle bytes into artifact bytes.
func (p *Pipeline) Encode(data []byte, opts Options) ([]byte, error) {
	if opts.Encrypt && !p.HasKey() {
		return nil, fmt.Errorf("%w: %w", ErrProcessing, ErrKeyRequired)
	}

	h := header{compressed: opts.Compress, encrypted: opts.Encrypt}
	payload := data
	if opts.Compress {
		h.codec = p.codec
		compressed, err := compress(p.codec, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
		}
		payload = compressed
	}

	hdr := h.marshal()
	if opts.Encrypt {
		sealed, err := seal(p.key, hdr, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
		}
		payload = sealed
	}

	out := make([]byte, 0, len(hdr)+len(payload))
	out = append(out, hdr...)
	return append(out, payload...), nil
}

// Decode turns artifact bytes back into bundle bytes.
func (p *Pipeline) Decode(data []byte) ([]byte, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
	}

	payload := data[headerSize:]
	if h.encrypted {
		if !p.HasKey() {
			return nil, fmt.Errorf("%w: %w", ErrProcessing, ErrKeyRequired)
		}
		plain, err := open(p.key, data[:headerSize], payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
		}
		payload = plain
	}
	if h.compressed {
		raw, err := decompress(h.codec, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
		}
		payload = raw
	}
	return payload, nil
}

// Describe reports the transforms recorded in an artifact header without
// decoding the payload.
func Describe(data []byte) (compressed, encrypted bool, codec Codec, err error) {
	h, err := parseHeader(data)
	if err != nil {
		return false, false, CodecNone, fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	return h.compressed, h.encrypted, h.codec, nil
}

// EncodeFile reads src fully, encodes it and writes dst through a
// temporary file and rename.
func (p *Pipeline) EncodeFile(src, dst string, opts Options) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("%w: read %q: %w", ErrProcessing, src, err)
	}
	out, err := p.Encode(data, opts)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(dst, out, 0o600); err != nil {
		return fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	return nil
}

// DecodeFile is the inverse of EncodeFile.
func (p *Pipeline) DecodeFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("%w: read %q: %w", ErrProcessing, src, err)
	}
	out, err := p.Decode(data)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(dst, out, 0o600); err != nil {
		return fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	return nil
}
