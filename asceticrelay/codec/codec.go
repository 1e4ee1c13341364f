package codec

import (
	"bytes"
	"compress/zlib"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
)

var ErrCiphertextTooShort = errors.New("codec: ciphertext too short")

// Codec turns event payloads into stored bytes and back.
type Codec interface {
	Encode(obj any) ([]byte, error)
	Decode(data []byte, into any) error
}

type JsonCodec struct{}

func (c JsonCodec) Encode(obj any) ([]byte, error) {
	return json.Marshal(obj)
}

func (c JsonCodec) Decode(data []byte, into any) error {
	return json.Unmarshal(data, into)
}

func NewZlibCompressor(delegate Codec) *ZlibCompressor {
	return &ZlibCompressor{delegate: delegate}
}

type ZlibCompressor struct {
	delegate Codec
}

func (c *ZlibCompressor) Encode(obj any) ([]byte, error) {
	data, err := c.delegate.Encode(obj)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err = w.Write(data); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *ZlibCompressor) Decode(data []byte, into any) error {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer r.Close()
	decompressed, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return c.delegate.Decode(decompressed, into)
}

const aesGcmNonceSize = 12

func NewAesGcmEncryptor(key []byte, delegate Codec) (*AesGcmEncryptor, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AesGcmEncryptor{aead: aead, delegate: delegate}, nil
}

type AesGcmEncryptor struct {
	aead     cipher.AEAD
	delegate Codec
}

func (c *AesGcmEncryptor) Encode(obj any) ([]byte, error) {
	data, err := c.delegate.Encode(obj)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aesGcmNonceSize)
	if _, err = rand.Read(nonce); err != nil {
		return nil, err
	}
	ciphertext := c.aead.Seal(nil, nonce, data, nil)
	return append(nonce, ciphertext...), nil
}

func (c *AesGcmEncryptor) Decode(data []byte, into any) error {
	if len(data) < aesGcmNonceSize {
		return ErrCiphertextTooShort
	}
	nonce := data[:aesGcmNonceSize]
	ciphertext := data[aesGcmNonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}
	return c.delegate.Decode(plaintext, into)
}

// New builds the payload codec chain: JSON, then optional compression, then
// optional encryption when key is not empty.
func New(compress bool, key []byte) (Codec, error) {
	var c Codec = JsonCodec{}
	if compress {
		c = NewZlibCompressor(c)
	}
	if len(key) > 0 {
		return NewAesGcmEncryptor(key, c)
	}
	return c, nil
}
