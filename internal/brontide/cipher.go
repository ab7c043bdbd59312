package brontide

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// rotationInterval is the number of encryptions (or decryptions) a single
// key/salt pair may perform before it must be rotated forward. Chosen to
// bound the blast radius of a single leaked key without rekeying so often
// that the handshake cost dominates steady-state traffic.
const rotationInterval = 1000

// cipherState is one direction's ChaCha20-Poly1305 key material: the
// current key, the salt it was derived from (consumed on the next
// rotation), and the running nonce counter. It is a plain value type, not
// an interface with multiple implementations — mirrors the PoW engine's
// sibling-struct shape rather than an embedding-based cipher hierarchy.
type cipherState struct {
	key     [32]byte
	salt    [32]byte
	counter uint32
}

// nonce builds brontide's 12-byte IV: zero prefix, a 32-bit little-endian
// counter at offset 4, zero suffix. This deviates from stock Noise's
// 8-byte counter field — the remaining 4 bytes stay zero rather than
// extending the counter, which is why rotation exists at all: a 32-bit
// counter wraps far sooner than a 64-bit one would.
func (c *cipherState) nonce() [12]byte {
	var n [12]byte
	binary.LittleEndian.PutUint32(n[4:8], c.counter)
	return n
}

// maybeRotate advances the key forward once rotationInterval encryptions
// have been performed under it, via HKDF-Expand-64(oldKey, salt=oldSalt).
// The 64-byte output splits into the next salt and the next key; the
// nonce counter resets since the new key has never been used.
func (c *cipherState) maybeRotate() {
	if c.counter < rotationInterval {
		return
	}
	r := hkdf.New(sha256.New, c.key[:], c.salt[:], nil)
	var out [64]byte
	if _, err := io.ReadFull(r, out[:]); err != nil {
		panic("brontide: hkdf rotation read failed: " + err.Error())
	}
	copy(c.salt[:], out[:32])
	copy(c.key[:], out[32:])
	c.counter = 0
}

// encrypt seals plaintext under the current key/nonce, rotating the key
// first if the rotation interval has elapsed, then advances the counter.
func (c *cipherState) encrypt(ad, plaintext []byte) ([]byte, error) {
	c.maybeRotate()
	aead, err := chacha20poly1305.New(c.key[:])
	if err != nil {
		return nil, err
	}
	n := c.nonce()
	ct := aead.Seal(nil, n[:], plaintext, ad)
	c.counter++
	return ct, nil
}

// decrypt opens ciphertext under the current key/nonce, rotating first on
// schedule exactly as encrypt does so both sides rotate on the same frame.
func (c *cipherState) decrypt(ad, ciphertext []byte) ([]byte, error) {
	c.maybeRotate()
	aead, err := chacha20poly1305.New(c.key[:])
	if err != nil {
		return nil, err
	}
	n := c.nonce()
	pt, err := aead.Open(nil, n[:], ciphertext, ad)
	if err != nil {
		return nil, ErrBadTag
	}
	c.counter++
	return pt, nil
}
