package transform

import (
	"bytes"
	"fmt"
)

// Artifact framing. Every artifact starts with an 8 byte header that
// records which transforms were applied, so restore never has to guess.
//
//	0..3  magic "MRKB"
//	4     version
//	5     flags (bit0 compressed, bit1 encrypted)
//	6     codec
//	7     reserved, zero
//
// Encrypted artifacts continue with a 16 byte HKDF salt and a 12 byte GCM
// nonce; the header is authenticated as additional data.
const (
	headerSize = 8
	version1   = 1

	flagCompressed byte = 1 << 0
	flagEncrypted  byte = 1 << 1
	knownFlags          = flagCompressed | flagEncrypted
)

var magic = []byte("MRKB")

type header struct {
	compressed bool
	encrypted  bool
	codec      Codec
}

func (h header) marshal() []byte {
	buf := make([]byte, headerSize)
	copy(buf, magic)
	buf[4] = version1
	if h.compressed {
		buf[5] |= flagCompressed
	}
	if h.encrypted {
		buf[5] |= flagEncrypted
	}
	buf[6] = byte(h.codec)
	return buf
}

func parseHeader(data []byte) (header, error) {
	if len(data) < headerSize {
		return header{}, fmt.Errorf("%w: artifact shorter than header (%d bytes)", ErrFormat, len(data))
	}
	if !bytes.Equal(data[:4], magic) {
		return header{}, fmt.Errorf("%w: bad magic %q", ErrFormat, data[:4])
	}
	if data[4] != version1 {
		return header{}, fmt.Errorf("%w: unsupported version %d", ErrFormat, data[4])
	}
	flags := data[5]
	if flags&^knownFlags != 0 || data[7] != 0 {
		return header{}, fmt.Errorf("%w: unknown flag bits %#x", ErrFormat, flags)
	}
	h := header{
		compressed: flags&flagCompressed != 0,
		encrypted:  flags&flagEncrypted != 0,
		codec:      Codec(data[6]),
	}
	switch {
	case h.compressed && h.codec != CodecZlib && h.codec != CodecZstd:
		return header{}, fmt.Errorf("%w: unknown codec %d", ErrFormat, h.codec)
	case !h.compressed && h.codec != CodecNone:
		return header{}, fmt.Errorf("%w: codec %d set on uncompressed artifact", ErrFormat, h.codec)
	}
	return h, nil
}
