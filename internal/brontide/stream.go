package brontide

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// MaxMessageSize bounds a single frame's payload. Anything larger is
// rejected before a single byte of it is read into memory.
const MaxMessageSize = 8 * 1024 * 1024 // 8 MiB

// prologue binds the handshake transcript to this protocol so it cannot
// be confused with, or replayed against, an unrelated Noise_XK deployment.
const prologue = "hns"

// lengthHeaderSize is the encrypted 4-byte length plus its own Poly1305
// tag, read before the payload is known.
const lengthHeaderSize = 4 + 16

// streamState tracks where a Stream sits in the handshake, mirroring the
// wire-level act sequence: no act sent yet, one act sent awaiting the
// peer's reply, the final act exchanged, or fully transitioned to framed
// application data.
type streamState int

const (
	stateNone streamState = iota
	stateActOneOrTwo
	stateActThree
	stateDone
)

// Stream wraps a net.Conn with the brontide handshake and framing. Dial and
// Accept run the three-act handshake to completion before returning the
// Stream; Read/Write then operate on encrypted application frames, and
// return an error if called before the handshake is complete.
type Stream struct {
	conn net.Conn
	hs   *handshakeState

	state     streamState
	initiator bool

	sendCipher cipherState
	recvCipher cipherState

	remoteStatic *secp256k1.PublicKey

	readBuf []byte // unconsumed plaintext from the last frame read
}

// Dial performs the initiator side of the handshake over conn and returns
// a Stream ready for framed application traffic. remote is the
// responder's static public key, known ahead of time.
func Dial(conn net.Conn, local *StaticKey, remote *secp256k1.PublicKey) (*Stream, error) {
	s := &Stream{
		conn:      conn,
		hs:        NewInitiatorHandshake(local.kp, remote, []byte(prologue)),
		initiator: true,
	}

	actOne, err := s.hs.GenActOne()
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(actOne); err != nil {
		return nil, err
	}
	s.state = stateActOneOrTwo

	actTwo := make([]byte, actTwoSize)
	if _, err := io.ReadFull(conn, actTwo); err != nil {
		return nil, err
	}
	if err := s.hs.RecvActTwo(actTwo); err != nil {
		return nil, err
	}

	actThree, err := s.hs.GenActThree()
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(actThree); err != nil {
		return nil, err
	}
	s.state = stateActThree
	s.remoteStatic = remote

	s.finishHandshake()
	return s, nil
}

// Accept performs the responder side of the handshake over conn and
// returns a Stream ready for framed application traffic, along with the
// initiator's static public key recovered from act three.
func Accept(conn net.Conn, local *StaticKey) (*Stream, *secp256k1.PublicKey, error) {
	s := &Stream{
		conn: conn,
		hs:   NewResponderHandshake(local.kp, []byte(prologue)),
	}

	actOne := make([]byte, actOneSize)
	if _, err := io.ReadFull(conn, actOne); err != nil {
		return nil, nil, err
	}
	if err := s.hs.RecvActOne(actOne); err != nil {
		return nil, nil, err
	}
	s.state = stateActOneOrTwo

	actTwo, err := s.hs.GenActTwo()
	if err != nil {
		return nil, nil, err
	}
	if _, err := conn.Write(actTwo); err != nil {
		return nil, nil, err
	}

	actThree := make([]byte, actThreeSize)
	if _, err := io.ReadFull(conn, actThree); err != nil {
		return nil, nil, err
	}
	remoteStatic, err := s.hs.RecvActThree(actThree)
	if err != nil {
		return nil, nil, err
	}
	s.remoteStatic = remoteStatic
	s.state = stateActThree

	s.finishHandshake()
	return s, remoteStatic, nil
}

func (s *Stream) finishHandshake() {
	sendKey, recvKey, salt := s.hs.Split()
	s.sendCipher = cipherState{key: sendKey, salt: salt}
	s.recvCipher = cipherState{key: recvKey, salt: salt}
	s.state = stateDone
	s.hs = nil // handshake transcript no longer needed past this point
}

// writeFrame encrypts and writes one length-prefixed, doubly-authenticated
// application frame: [enc(len)+tag][enc(payload)+tag].
func (s *Stream) writeFrame(payload []byte) error {
	if len(payload) > MaxMessageSize {
		return ErrBadPacketSize
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	encLen, err := s.sendCipher.encrypt(nil, lenBuf[:])
	if err != nil {
		return err
	}
	encPayload, err := s.sendCipher.encrypt(nil, payload)
	if err != nil {
		return err
	}

	if _, err := s.conn.Write(encLen); err != nil {
		return err
	}
	if _, err := s.conn.Write(encPayload); err != nil {
		return err
	}
	return nil
}

// readFrame reads and decrypts exactly one application frame, a
// two-phase read: the fixed 20-byte length header first, then exactly
// that many bytes (plus tag) of payload once the size is known.
func (s *Stream) readFrame() ([]byte, error) {
	header := make([]byte, lengthHeaderSize)
	if _, err := io.ReadFull(s.conn, header); err != nil {
		return nil, err
	}
	lenBuf, err := s.recvCipher.decrypt(nil, header)
	if err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(lenBuf)
	if size > MaxMessageSize {
		return nil, ErrBadPacketSize
	}

	body := make([]byte, int(size)+16)
	if _, err := io.ReadFull(s.conn, body); err != nil {
		return nil, err
	}
	payload, err := s.recvCipher.decrypt(nil, body)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Write implements io.Writer over the framed, encrypted stream. The
// handshake must already be complete (Dial/Accept do this internally).
func (s *Stream) Write(p []byte) (int, error) {
	if s.state != stateDone {
		return 0, fmt.Errorf("brontide: write before handshake complete")
	}
	if err := s.writeFrame(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read implements io.Reader over the framed, encrypted stream, buffering
// any unconsumed bytes from a frame larger than the caller's slice.
func (s *Stream) Read(p []byte) (int, error) {
	if s.state != stateDone {
		return 0, fmt.Errorf("brontide: read before handshake complete")
	}
	if len(s.readBuf) == 0 {
		frame, err := s.readFrame()
		if err != nil {
			return 0, err
		}
		s.readBuf = frame
	}
	n := copy(p, s.readBuf)
	s.readBuf = s.readBuf[n:]
	return n, nil
}

// Close closes the underlying connection.
func (s *Stream) Close() error {
	return s.conn.Close()
}

// RemoteStatic returns the peer's static public key, available once the
// handshake has completed.
func (s *Stream) RemoteStatic() *secp256k1.PublicKey {
	return s.remoteStatic
}
