package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func roundTrip(t *testing.T, c Codec) {
	t.Helper()
	in := payload{Name: "alice", Count: 3}
	data, err := c.Encode(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, c.Decode(data, &out))
	assert.Equal(t, in, out)
}

func TestJsonCodec(t *testing.T) {
	roundTrip(t, JsonCodec{})
}

func TestZlibCompressor(t *testing.T) {
	roundTrip(t, NewZlibCompressor(JsonCodec{}))
}

func TestAesGcmEncryptor(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	enc, err := NewAesGcmEncryptor(key, NewZlibCompressor(JsonCodec{}))
	require.NoError(t, err)
	roundTrip(t, enc)
}

func TestAesGcmEncryptor_ShortCiphertext(t *testing.T) {
	enc, err := NewAesGcmEncryptor([]byte("0123456789abcdef"), JsonCodec{})
	require.NoError(t, err)

	var out payload
	assert.ErrorIs(t, enc.Decode([]byte{1, 2}, &out), ErrCiphertextTooShort)
}

func TestAesGcmEncryptor_InvalidKey(t *testing.T) {
	_, err := NewAesGcmEncryptor([]byte("short"), JsonCodec{})
	assert.Error(t, err)
}

func TestNew_Chain(t *testing.T) {
	c, err := New(false, nil)
	require.NoError(t, err)
	assert.IsType(t, JsonCodec{}, c)

	c, err = New(true, []byte("0123456789abcdef"))
	require.NoError(t, err)
	assert.IsType(t, &AesGcmEncryptor{}, c)
	roundTrip(t, c)
}
