package transform

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBundle(t *testing.T) []byte {
	t.Helper()
	// Half repetitive, half random: compressible but not trivially so.
	random := make([]byte, 4096)
	_, err := rand.Read(random)
	require.NoError(t, err)
	return append(bytes.Repeat([]byte("grade:A;term:1;"), 2048), random...)
}

func TestRoundTrip_AllCombinations(t *testing.T) {
	bundle := sampleBundle(t)

	for _, codec := range []Codec{CodecZlib, CodecZstd} {
		p := New(WithKey("correct horse battery staple"), WithCodec(codec))
		for _, opts := range []Options{
			{Compress: false, Encrypt: false},
			{Compress: true, Encrypt: false},
			{Compress: false, Encrypt: true},
			{Compress: true, Encrypt: true},
		} {
			name := fmt.Sprintf("%s/compress=%t/encrypt=%t", codec, opts.Compress, opts.Encrypt)
			t.Run(name, func(t *testing.T) {
				encoded, err := p.Encode(bundle, opts)
				require.NoError(t, err)

				compressed, encrypted, gotCodec, err := Describe(encoded)
				require.NoError(t, err)
				assert.Equal(t, opts.Compress, compressed)
				assert.Equal(t, opts.Encrypt, encrypted)
				if opts.Compress {
					assert.Equal(t, codec, gotCodec)
				}

				decoded, err := p.Decode(encoded)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(bundle, decoded), "round trip must be byte-identical")
			})
		}
	}
}

func TestEncode_EncryptWithoutKeyFailsClosed(t *testing.T) {
	p := New()
	_, err := p.Encode([]byte("db"), DefaultOptions())
	require.ErrorIs(t, err, ErrProcessing)
	require.ErrorIs(t, err, ErrKeyRequired)
}

func TestDecode_WrongKey(t *testing.T) {
	encoded, err := New(WithKey("alpha")).Encode([]byte("payload"), DefaultOptions())
	require.NoError(t, err)

	_, err = New(WithKey("beta")).Decode(encoded)
	require.ErrorIs(t, err, ErrProcessing)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestDecode_EncryptedWithoutKey(t *testing.T) {
	encoded, err := New(WithKey("alpha")).Encode([]byte("payload"), DefaultOptions())
	require.NoError(t, err)

	_, err = New().Decode(encoded)
	require.ErrorIs(t, err, ErrKeyRequired)
}

func TestDecode_TamperedHeaderIsDetected(t *testing.T) {
	p := New(WithKey("alpha"))
	encoded, err := p.Encode(sampleBundle(t), DefaultOptions())
	require.NoError(t, err)

	// Claim the payload is not compressed; the header is authenticated.
	encoded[5] &^= flagCompressed
	encoded[6] = byte(CodecNone)

	_, err = p.Decode(encoded)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestDecode_TamperedCiphertext(t *testing.T) {
	p := New(WithKey("alpha"))
	encoded, err := p.Encode([]byte("payload"), DefaultOptions())
	require.NoError(t, err)

	encoded[len(encoded)-1] ^= 0xff
	_, err = p.Decode(encoded)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestDecode_MalformedInputs(t *testing.T) {
	p := New(WithKey("alpha"))
	valid, err := p.Encode([]byte("payload"), Options{Compress: true})
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":         {},
		"short":         []byte("MRK"),
		"bad magic":     append([]byte("XXXX"), valid[4:]...),
		"bad version":   append(append([]byte{}, valid[:4]...), append([]byte{9}, valid[5:]...)...),
		"unknown flags": append(append([]byte{}, valid[:5]...), append([]byte{0x80}, valid[6:]...)...),
		"truncated":     valid[:len(valid)-3],
		"garbage":       bytes.Repeat([]byte{0x13}, 512),
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Decode(input)
			require.ErrorIs(t, err, ErrProcessing)
		})
	}
}

func TestEncodeDecodeFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bundle.tmp")
	artifact := filepath.Join(dir, "marka-backup-20250101-000000.marka")
	restored := filepath.Join(dir, "restored.tar")
	bundle := sampleBundle(t)
	require.NoError(t, os.WriteFile(src, bundle, 0o600))

	p := New(WithKey("k"), WithCodec(CodecZstd))
	require.NoError(t, p.EncodeFile(src, artifact, DefaultOptions()))
	require.NoError(t, p.DecodeFile(artifact, restored))

	got, err := os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, bundle, got)

	_, err = os.Stat(artifact + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestDecodeFile_FailureLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "garbage.marka")
	dst := filepath.Join(dir, "out.tar")
	require.NoError(t, os.WriteFile(src, []byte("not an artifact at all"), 0o600))

	err := New().DecodeFile(src, dst)
	require.ErrorIs(t, err, ErrProcessing)

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(dst + ".tmp")
	assert.True(t, os.IsNotExist(statErr))
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec("zstd")
	require.NoError(t, err)
	assert.Equal(t, CodecZstd, c)

	c, err = ParseCodec("")
	require.NoError(t, err)
	assert.Equal(t, CodecZlib, c)

	_, err = ParseCodec("brotli")
	assert.Error(t, err)
}
