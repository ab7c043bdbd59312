package brontide

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// protocolName seeds the handshake hash; it identifies the exact Noise
// pattern and primitive suite so two peers running incompatible crypto
// never produce matching transcripts.
const protocolName = "Noise_XK_secp256k1_ChaChaPoly_SHA256"

// symmetricState carries the running handshake hash h and chaining key ck
// across the three acts, alongside the cipherState derived from the most
// recent mixKey. It is a value type composed into handshakeState rather
// than an interface-driven object, matching the PoW engine's plain-struct
// style (internal/consensus).
type symmetricState struct {
	h  [32]byte
	ck [32]byte
	c  cipherState
	hasKey bool
}

func newSymmetricState() symmetricState {
	var s symmetricState
	h := sha256.Sum256([]byte(protocolName))
	s.h = h
	s.ck = h
	return s
}

// mixHash folds data into the running transcript hash.
func (s *symmetricState) mixHash(data []byte) {
	h := sha256.New()
	h.Write(s.h[:])
	h.Write(data)
	copy(s.h[:], h.Sum(nil))
}

// mixKey performs HKDF(ck, ikm) -> (ck', tempK), replaces ck with ck' and
// initializes the cipherState for subsequent encryptAndHash calls with
// tempK as the key and a fresh zero salt (rotation salt is established on
// the first post-handshake rotation, not during the handshake itself).
func (s *symmetricState) mixKey(ikm []byte) {
	r := hkdf.New(sha256.New, ikm, s.ck[:], nil)
	var out [64]byte
	if _, err := io.ReadFull(r, out[:]); err != nil {
		panic("brontide: hkdf mixKey read failed: " + err.Error())
	}
	copy(s.ck[:], out[:32])
	copy(s.c.key[:], out[32:])
	s.c.counter = 0
	s.hasKey = true
}

// encryptAndHash encrypts plaintext (AD is the running hash) if a key has
// been established, then mixes the resulting ciphertext into the hash.
// Before the first mixKey the plaintext is returned unchanged and mixed
// into the hash as is.
func (s *symmetricState) encryptAndHash(plaintext []byte) ([]byte, error) {
	if !s.hasKey {
		s.mixHash(plaintext)
		return plaintext, nil
	}
	ct, err := s.c.encrypt(s.h[:], plaintext)
	if err != nil {
		return nil, err
	}
	s.mixHash(ct)
	return ct, nil
}

func (s *symmetricState) decryptAndHash(ciphertext []byte) ([]byte, error) {
	if !s.hasKey {
		s.mixHash(ciphertext)
		return ciphertext, nil
	}
	pt, err := s.c.decrypt(s.h[:], ciphertext)
	if err != nil {
		return nil, err
	}
	s.mixHash(ciphertext)
	return pt, nil
}

// split derives the two directional transport keys from the final
// chaining key via HKDF(ck, empty), returning (sendKey, recvKey) from the
// initiator's perspective (the responder swaps the pair), plus the final
// chaining key itself — both directions seed their rotation salt from
// this same ck, since only the key half of each cipherState differs.
func (s *symmetricState) split() (sendKey, recvKey, ck [32]byte) {
	r := hkdf.New(sha256.New, nil, s.ck[:], nil)
	var out [64]byte
	if _, err := io.ReadFull(r, out[:]); err != nil {
		panic("brontide: hkdf split read failed: " + err.Error())
	}
	copy(sendKey[:], out[:32])
	copy(recvKey[:], out[32:])
	ck = s.ck
	return
}
