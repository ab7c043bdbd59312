// Package brontide implements the Noise_XK_secp256k1_ChaChaPoly_SHA256
// encrypted transport used for peer-to-peer connections: a three-act
// handshake followed by a length-prefixed, authenticated-encryption framing
// for the data stream.
package brontide

import "errors"

// Protocol error discriminants. Every failure a peer can observe while
// driving a handshake or reading a frame maps to exactly one of these, so
// callers can tell which check failed. A failed read leaves the stream out
// of step with its peer, so a bad tag on a frame is as fatal to the
// connection as a bad version or a bad key.
var (
	ErrBadVersion     = errors.New("brontide: unsupported handshake version")
	ErrBadSize        = errors.New("brontide: handshake message has the wrong size")
	ErrBadTag         = errors.New("brontide: AEAD tag verification failed")
	ErrBadKey         = errors.New("brontide: malformed public key")
	ErrBadPacketSize  = errors.New("brontide: frame payload exceeds MaxMessageSize")
	ErrHandshakeOrder = errors.New("brontide: handshake act received out of order")
)
