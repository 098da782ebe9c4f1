package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

const (
	// maxFrameSize bounds a single frame payload. Entries responses are
	// the only variable-length message; this caps them at ~10k entries.
	maxFrameSize = 1 * 1024 * 1024
)

// Errors
var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrEpochMismatch    = errors.New("epoch mismatch")
	ErrUnknownParty     = errors.New("unknown party")
	ErrBadSignature     = errors.New("bad signature")
	ErrFrameTooLarge    = errors.New("frame exceeds maximum size")
)

// WriteFrame writes one length-prefixed, checksummed frame
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameSize {
		return ErrFrameTooLarge
	}

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}

	binary.BigEndian.PutUint32(hdr[:], crc32.ChecksumIEEE(payload))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	return nil
}

// ReadFrame reads one frame and verifies its checksum. A checksum or
// length violation is reported as ErrMalformedMessage; transport errors
// are returned as-is.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(hdr[:])
	if length > maxFrameSize {
		return nil, fmt.Errorf("%w: frame length %d", ErrMalformedMessage, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	expected := binary.BigEndian.Uint32(hdr[:])
	if actual := crc32.ChecksumIEEE(payload); actual != expected {
		return nil, fmt.Errorf("%w: CRC mismatch (expected %08x, got %08x)",
			ErrMalformedMessage, expected, actual)
	}

	return payload, nil
}
