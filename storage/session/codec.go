package session

import (
	"crypto/rand"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var errUnsealing = errors.New("session payload cannot be opened")

// Codec encodes sessions as JSON, sealed with nacl/secretbox when a key is set.
// Drafts hold passwords: stores living outside the process should be sealed.
type Codec struct {
	key    *[32]byte
	sealed bool
}

// NewCodec returns a plain JSON Codec.
func NewCodec() *Codec {
	return &Codec{}
}

// NewSealedCodec returns a Codec sealing the payloads with a key derived from secret.
func NewSealedCodec(secret string) *Codec {
	key := blake2b.Sum256([]byte(secret))
	return &Codec{key: &key, sealed: true}
}

func (c *Codec) Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if !c.sealed {
		return data, nil
	}

	var nonce [nonceSize]byte
	if _, err = io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, errors.Wrap(err, "generating nonce")
	}
	// the nonce prefixes the box
	return secretbox.Seal(nonce[:], data, &nonce, c.key), nil
}

func (c *Codec) Decode(data []byte, v interface{}) error {
	if c.sealed {
		if len(data) < nonceSize {
			return errUnsealing
		}
		var nonce [nonceSize]byte
		copy(nonce[:], data[:nonceSize])
		opened, ok := secretbox.Open(nil, data[nonceSize:], &nonce, c.key)
		if !ok {
			return errUnsealing
		}
		data = opened
	}
	return json.Unmarshal(data, v)
}
