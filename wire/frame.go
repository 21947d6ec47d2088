package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// FrameHeaderSize is the length of the big-endian u32 length prefix.
const FrameHeaderSize = 4

// WriteFrame writes a single length-prefixed frame to w. It is the only
// place that enforces MaxFrameLen: a too-large payload never touches the
// transport.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameLen {
		return ErrMessageTooLong
	}
	var hdr [FrameHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads a single length-prefixed frame from r.
//
// An EOF before any byte of the header is read is reported as io.EOF (a
// clean end-of-stream). A short read anywhere after that — including a
// partial header or a truncated payload — is reported as ErrShortFrame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [FrameHeaderSize]byte
	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, ErrShortFrame
	}

	length := binary.BigEndian.Uint32(hdr[:])
	if length == 0 {
		return nil, nil
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, ErrShortFrame
	}
	return payload, nil
}
