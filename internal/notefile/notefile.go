// Package notefile encodes notes for off-band transfer between wallets.
//
// Layout: magic "MNOT" | version (1 byte) | payload length (uint32 BE) |
// JSON payload | CRC32-IEEE of the payload (uint32 BE).
package notefile

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/congo-pay/note_wallet/internal/ledger"
)

const (
	// Extension is the conventional file suffix.
	Extension = ".mno"

	version        = 1
	headerSize     = 9
	trailerSize    = 4
	maxPayloadSize = 1 << 20
)

var magic = [4]byte{'M', 'N', 'O', 'T'}

var (
	ErrBadMagic           = errors.New("notefile: bad magic")
	ErrUnsupportedVersion = errors.New("notefile: unsupported version")
	ErrTooLarge           = errors.New("notefile: payload too large")
	ErrChecksum           = errors.New("notefile: checksum mismatch")
	ErrTruncated          = errors.New("notefile: truncated")
	ErrNoteIDMismatch     = errors.New("notefile: note id does not match contents")
)

// Encode serializes n. The note's ID is recomputed from its contents.
func Encode(n ledger.Note) ([]byte, error) {
	return encodeRaw(n.Seal())
}

func encodeRaw(n ledger.Note) ([]byte, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("notefile: encode payload: %w", err)
	}
	if len(payload) > maxPayloadSize {
		return nil, ErrTooLarge
	}

	var buf bytes.Buffer
	buf.Grow(headerSize + len(payload) + trailerSize)
	buf.Write(magic[:])
	buf.WriteByte(version)
	var word [4]byte
	binary.BigEndian.PutUint32(word[:], uint32(len(payload)))
	buf.Write(word[:])
	buf.Write(payload)
	binary.BigEndian.PutUint32(word[:], crc32.ChecksumIEEE(payload))
	buf.Write(word[:])
	return buf.Bytes(), nil
}

// Decode parses data and checks its integrity.
func Decode(data []byte) (ledger.Note, error) {
	if len(data) < headerSize+trailerSize {
		return ledger.Note{}, ErrTruncated
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return ledger.Note{}, ErrBadMagic
	}
	if data[4] != version {
		return ledger.Note{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[4])
	}
	length := binary.BigEndian.Uint32(data[5:headerSize])
	if length > maxPayloadSize {
		return ledger.Note{}, ErrTooLarge
	}
	if uint64(len(data)) != uint64(headerSize)+uint64(length)+trailerSize {
		return ledger.Note{}, ErrTruncated
	}
	payload := data[headerSize : headerSize+int(length)]
	want := binary.BigEndian.Uint32(data[headerSize+int(length):])
	if crc32.ChecksumIEEE(payload) != want {
		return ledger.Note{}, ErrChecksum
	}

	var n ledger.Note
	if err := json.Unmarshal(payload, &n); err != nil {
		return ledger.Note{}, fmt.Errorf("notefile: decode payload: %w", err)
	}
	if ledger.ComputeNoteID(n) != n.ID {
		return ledger.Note{}, ErrNoteIDMismatch
	}
	return n, nil
}

// ReadFile decodes the note file at path.
func ReadFile(path string) (ledger.Note, error) {
	data, err := ReadRaw(path)
	if err != nil {
		return ledger.Note{}, err
	}
	return Decode(data)
}

// ReadRaw reads the note file at path without decoding it. Files larger than
// any valid encoding are rejected.
func ReadRaw(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, headerSize+maxPayloadSize+trailerSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > headerSize+maxPayloadSize+trailerSize {
		return nil, ErrTooLarge
	}
	return data, nil
}

// WriteFile encodes n to path.
func WriteFile(path string, n ledger.Note) error {
	data, err := Encode(n)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
