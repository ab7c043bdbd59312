package brontide

import (
	"crypto/sha256"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// keyPair is a secp256k1 static or ephemeral Diffie-Hellman key, reused
// for both the long-lived node identity and the per-handshake ephemerals.
type keyPair struct {
	priv *secp256k1.PrivateKey
	pub  *secp256k1.PublicKey
}

// StaticKey is a node's long-lived brontide identity key, passed to Dial
// and Accept across connections (unlike the ephemeral keys, which are
// generated fresh per handshake and never exposed outside this package).
type StaticKey struct {
	kp *keyPair
}

// GenerateStaticKey creates a new random node identity key.
func GenerateStaticKey() (*StaticKey, error) {
	kp, err := generateKeyPair()
	if err != nil {
		return nil, err
	}
	return &StaticKey{kp: kp}, nil
}

// StaticKeyFromBytes loads a node identity key from its 32-byte scalar.
func StaticKeyFromBytes(b []byte) (*StaticKey, error) {
	kp, err := keyPairFromPrivBytes(b)
	if err != nil {
		return nil, err
	}
	return &StaticKey{kp: kp}, nil
}

// PublicKey returns the compressed 33-byte public key other peers use to
// address and authenticate this node.
func (k *StaticKey) PublicKey() []byte {
	return k.kp.pub.SerializeCompressed()
}

// RemoteKey parses a compressed 33-byte public key received out of band
// (e.g. from a peer address book entry) for use as Dial's remote argument.
func RemoteKey(compressed []byte) (*secp256k1.PublicKey, error) {
	return parsePubKey(compressed)
}

func generateKeyPair() (*keyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("brontide: generate ephemeral key: %w", err)
	}
	return &keyPair{priv: priv, pub: priv.PubKey()}, nil
}

func keyPairFromPrivBytes(b []byte) (*keyPair, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: private key must be 32 bytes, got %d", ErrBadKey, len(b))
	}
	priv := secp256k1.PrivKeyFromBytes(b)
	return &keyPair{priv: priv, pub: priv.PubKey()}, nil
}

func parsePubKey(b []byte) (*secp256k1.PublicKey, error) {
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	return pub, nil
}

// ecdh performs an EC point multiply of pub by priv and returns the
// SHA256 of the compressed serialization of the resulting point, the
// shared secret consumed by the symmetric-state mixKey step.
func ecdh(priv *secp256k1.PrivateKey, pub *secp256k1.PublicKey) [32]byte {
	var pubJ, result secp256k1.JacobianPoint
	pub.AsJacobian(&pubJ)

	secp256k1.ScalarMultNonConst(&priv.Key, &pubJ, &result)
	result.ToAffine()

	var compressed [33]byte
	if result.Y.IsOdd() {
		compressed[0] = 0x03
	} else {
		compressed[0] = 0x02
	}
	xBytes := result.X.Bytes()
	copy(compressed[1:], xBytes[:])

	return sha256.Sum256(compressed[:])
}
