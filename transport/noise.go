package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/flynn/noise"
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherAESGCM, noise.HashSHA256)

var (
	// ErrHandshakeFailed is returned when the Noise handshake fails.
	ErrHandshakeFailed = errors.New("transport: handshake failed")
	// ErrHandshakeIncomplete is returned when the handshake has not yet
	// produced session keys.
	ErrHandshakeIncomplete = errors.New("transport: handshake not complete")
)

// handshake wraps Noise_XX: both sides carry a static key, so the
// handshake simultaneously authenticates and reveals the peer's
// long-lived public identity. This is Atsika-aznet's crypto.go Noise
// type, switched from the anonymous NN pattern (no static keys) to XX,
// since laminar's Claims.observed requires an actual identity.
type handshake struct {
	hs          *noise.HandshakeState
	isComplete  bool
	isInitiator bool
}

func newHandshake(local *SecretKey, initiator bool) (*handshake, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: local.dhKey(),
	})
	if err != nil {
		return nil, fmt.Errorf("transport: init handshake: %w", err)
	}
	return &handshake{hs: hs, isInitiator: initiator}, nil
}

func (h *handshake) writeMessage(payload []byte) ([]byte, error) {
	msg, cs1, cs2, err := h.hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, err
	}
	if cs1 != nil && cs2 != nil {
		h.isComplete = true
	}
	return msg, nil
}

func (h *handshake) readMessage(msg []byte) ([]byte, error) {
	payload, cs1, cs2, err := h.hs.ReadMessage(nil, msg)
	if err != nil {
		return nil, err
	}
	if cs1 != nil && cs2 != nil {
		h.isComplete = true
	}
	return payload, nil
}

// peerIdentity returns the remote static key revealed by the handshake.
// Only valid once isComplete is true.
//
// The derived cs1/cs2 cipher states are discarded once the handshake
// completes: QUIC's own TLS layer already encrypts every stream, so
// Noise here serves authentication and identity reveal only, not a
// second data-encryption layer.
func (h *handshake) peerIdentity() Identity {
	return Identity(h.hs.PeerStatic())
}

// runClientHandshake performs the 3-message Noise_XX exchange as
// initiator over rw, returning the peer's revealed identity.
func runClientHandshake(rw io.ReadWriter, local *SecretKey) (*handshake, Identity, error) {
	h, err := newHandshake(local, true)
	if err != nil {
		return nil, nil, err
	}

	msg1, err := h.writeMessage(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: msg1: %v", ErrHandshakeFailed, err)
	}
	if err := writeHandshakeMsg(rw, msg1); err != nil {
		return nil, nil, err
	}

	msg2, err := readHandshakeMsg(rw)
	if err != nil {
		return nil, nil, err
	}
	if _, err := h.readMessage(msg2); err != nil {
		return nil, nil, fmt.Errorf("%w: msg2: %v", ErrHandshakeFailed, err)
	}

	msg3, err := h.writeMessage(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: msg3: %v", ErrHandshakeFailed, err)
	}
	if err := writeHandshakeMsg(rw, msg3); err != nil {
		return nil, nil, err
	}

	if !h.isComplete {
		return nil, nil, ErrHandshakeIncomplete
	}
	return h, h.peerIdentity(), nil
}

// runServerHandshake performs the 3-message Noise_XX exchange as
// responder over rw, returning the peer's revealed identity.
func runServerHandshake(rw io.ReadWriter, local *SecretKey) (*handshake, Identity, error) {
	h, err := newHandshake(local, false)
	if err != nil {
		return nil, nil, err
	}

	msg1, err := readHandshakeMsg(rw)
	if err != nil {
		return nil, nil, err
	}
	if _, err := h.readMessage(msg1); err != nil {
		return nil, nil, fmt.Errorf("%w: msg1: %v", ErrHandshakeFailed, err)
	}

	msg2, err := h.writeMessage(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: msg2: %v", ErrHandshakeFailed, err)
	}
	if err := writeHandshakeMsg(rw, msg2); err != nil {
		return nil, nil, err
	}

	msg3, err := readHandshakeMsg(rw)
	if err != nil {
		return nil, nil, err
	}
	if _, err := h.readMessage(msg3); err != nil {
		return nil, nil, fmt.Errorf("%w: msg3: %v", ErrHandshakeFailed, err)
	}

	if !h.isComplete {
		return nil, nil, ErrHandshakeIncomplete
	}
	return h, h.peerIdentity(), nil
}

func writeHandshakeMsg(w io.Writer, msg []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(msg)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	return nil
}

func readHandshakeMsg(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	length := binary.BigEndian.Uint32(hdr[:])
	msg := make([]byte, length)
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	return msg, nil
}
