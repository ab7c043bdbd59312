package brontide

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// handshakeVersion is the single byte prefixing every act. Any other value
// observed on the wire is ErrBadVersion — there is no version negotiation.
const handshakeVersion = 0

const (
	actOneSize   = 50 // version(1) + ephemeral pubkey(33) + tag(16)
	actTwoSize   = 50 // version(1) + ephemeral pubkey(33) + tag(16)
	actThreeSize = 66 // version(1) + enc(static pubkey)(49) + tag(16)
)

// handshakeState drives one side of the Noise_XK handshake. It is a plain
// value-composed struct — symmetricState, the local/remote key material —
// rather than an interface hierarchy, following the sibling-engine shape
// of internal/consensus's PoW/PoA structs.
type handshakeState struct {
	initiator bool
	sym       symmetricState

	localStatic  *keyPair
	remoteStatic *secp256k1.PublicKey // known ahead of time (pre-message, Noise_XK)

	localEphemeral  *keyPair
	remoteEphemeral *secp256k1.PublicKey
}

// newHandshakeState builds the shared prologue/pre-message transcript.
// remoteStatic must be non-nil: Noise_XK's pre-message `<- s` means the
// responder's static key is always known to the initiator ahead of the
// connection, and the responder mixes in its own static key in the same
// slot so both transcripts match.
func newHandshakeState(initiator bool, prologue []byte, localStatic *keyPair, remoteStatic *secp256k1.PublicKey) *handshakeState {
	hs := &handshakeState{
		initiator:    initiator,
		sym:          newSymmetricState(),
		localStatic:  localStatic,
		remoteStatic: remoteStatic,
	}
	hs.sym.mixHash(prologue)
	hs.sym.mixHash(remoteStatic.SerializeCompressed())
	return hs
}

// NewInitiatorHandshake starts a handshake as the connecting side. remote
// is the responder's static public key, obtained out of band (e.g. from a
// peer address book) before dialing.
func NewInitiatorHandshake(local *keyPair, remote *secp256k1.PublicKey, prologue []byte) *handshakeState {
	return newHandshakeState(true, prologue, local, remote)
}

// NewResponderHandshake starts a handshake as the accepting side. The
// pre-message slot is filled with the responder's own static key so both
// transcripts mix in the same bytes.
func NewResponderHandshake(local *keyPair, prologue []byte) *handshakeState {
	return newHandshakeState(false, prologue, local, local.pub)
}

// GenActOne is called by the initiator to produce the first handshake
// message: e, es.
func (hs *handshakeState) GenActOne() ([]byte, error) {
	e, err := generateKeyPair()
	if err != nil {
		return nil, err
	}
	hs.localEphemeral = e

	hs.sym.mixHash(e.pub.SerializeCompressed())

	ss := ecdh(e.priv, hs.remoteStatic)
	hs.sym.mixKey(ss[:])

	tag, err := hs.sym.encryptAndHash(nil)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, actOneSize)
	out = append(out, handshakeVersion)
	out = append(out, e.pub.SerializeCompressed()...)
	out = append(out, tag...)
	return out, nil
}

// RecvActOne is called by the responder to process the initiator's first
// message, completing the es mix on its own side of the same DH.
func (hs *handshakeState) RecvActOne(msg []byte) error {
	if len(msg) != actOneSize {
		return fmt.Errorf("%w: act one is %d bytes, got %d", ErrBadSize, actOneSize, len(msg))
	}
	if msg[0] != handshakeVersion {
		return ErrBadVersion
	}
	ePubBytes := msg[1:34]
	tag := msg[34:50]

	ePub, err := parsePubKey(ePubBytes)
	if err != nil {
		return err
	}
	hs.remoteEphemeral = ePub

	hs.sym.mixHash(ePubBytes)

	ss := ecdh(hs.localStatic.priv, ePub)
	hs.sym.mixKey(ss[:])

	if _, err := hs.sym.decryptAndHash(tag); err != nil {
		return err
	}
	return nil
}

// GenActTwo is called by the responder to produce the second handshake
// message: e, ee.
func (hs *handshakeState) GenActTwo() ([]byte, error) {
	e, err := generateKeyPair()
	if err != nil {
		return nil, err
	}
	hs.localEphemeral = e

	hs.sym.mixHash(e.pub.SerializeCompressed())

	ss := ecdh(e.priv, hs.remoteEphemeral)
	hs.sym.mixKey(ss[:])

	tag, err := hs.sym.encryptAndHash(nil)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, actTwoSize)
	out = append(out, handshakeVersion)
	out = append(out, e.pub.SerializeCompressed()...)
	out = append(out, tag...)
	return out, nil
}

// RecvActTwo is called by the initiator to process the responder's second
// message.
func (hs *handshakeState) RecvActTwo(msg []byte) error {
	if len(msg) != actTwoSize {
		return fmt.Errorf("%w: act two is %d bytes, got %d", ErrBadSize, actTwoSize, len(msg))
	}
	if msg[0] != handshakeVersion {
		return ErrBadVersion
	}
	ePubBytes := msg[1:34]
	tag := msg[34:50]

	ePub, err := parsePubKey(ePubBytes)
	if err != nil {
		return err
	}
	hs.remoteEphemeral = ePub

	hs.sym.mixHash(ePubBytes)

	ss := ecdh(hs.localEphemeral.priv, ePub)
	hs.sym.mixKey(ss[:])

	if _, err := hs.sym.decryptAndHash(tag); err != nil {
		return err
	}
	return nil
}

// GenActThree is called by the initiator to produce the final handshake
// message: s, se. It reveals the initiator's static key, encrypted under
// the act-two key, then mixes in a final se DH before the closing tag.
func (hs *handshakeState) GenActThree() ([]byte, error) {
	encStatic, err := hs.sym.encryptAndHash(hs.localStatic.pub.SerializeCompressed())
	if err != nil {
		return nil, err
	}

	ss := ecdh(hs.localStatic.priv, hs.remoteEphemeral)
	hs.sym.mixKey(ss[:])

	tag, err := hs.sym.encryptAndHash(nil)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, actThreeSize)
	out = append(out, handshakeVersion)
	out = append(out, encStatic...)
	out = append(out, tag...)
	return out, nil
}

// RecvActThree is called by the responder to process the initiator's
// final message, recovering and authenticating its static public key.
func (hs *handshakeState) RecvActThree(msg []byte) (*secp256k1.PublicKey, error) {
	if len(msg) != actThreeSize {
		return nil, fmt.Errorf("%w: act three is %d bytes, got %d", ErrBadSize, actThreeSize, len(msg))
	}
	if msg[0] != handshakeVersion {
		return nil, ErrBadVersion
	}
	encStatic := msg[1:50]
	tag := msg[50:66]

	staticBytes, err := hs.sym.decryptAndHash(encStatic)
	if err != nil {
		return nil, err
	}
	remoteStatic, err := parsePubKey(staticBytes)
	if err != nil {
		return nil, err
	}
	hs.remoteStatic = remoteStatic

	ss := ecdh(hs.localEphemeral.priv, remoteStatic)
	hs.sym.mixKey(ss[:])

	if _, err := hs.sym.decryptAndHash(tag); err != nil {
		return nil, err
	}
	return remoteStatic, nil
}

// Split derives the directional transport keys once the handshake has
// completed act three on both sides. The initiator's send key is the
// responder's recv key and vice versa; both directions' rotation salt
// seeds from the same final chaining key.
func (hs *handshakeState) Split() (sendKey, recvKey, salt [32]byte) {
	k1, k2, ck := hs.sym.split()
	if hs.initiator {
		return k1, k2, ck
	}
	return k2, k1, ck
}
