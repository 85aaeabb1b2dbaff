package transform

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Codec identifies the compression algorithm recorded in the header.
type Codec byte

const (
	CodecNone Codec = 0
	CodecZlib Codec = 1
	CodecZstd Codec = 2
)

// ParseCodec maps a configuration name to a Codec.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "zlib":
		return CodecZlib, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return CodecNone, fmt.Errorf("unsupported codec %q", name)
	}
}

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZlib:
		return "zlib"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", byte(c))
	}
}

func compress(c Codec, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch c {
	case CodecZlib:
		w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("create zlib writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("zlib compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("zlib close: %w", err)
		}
	case CodecZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("unsupported codec %s", c)
	}
	return buf.Bytes(), nil
}

func decompress(c Codec, data []byte) ([]byte, error) {
	switch c {
	case CodecZlib:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open zlib stream: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("zlib decompress: %w", err)
		}
		return out, nil
	case CodecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported codec %s", c)
	}
}
