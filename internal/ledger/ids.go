package ledger

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// StorageMode is the visibility of an account's state on the network.
type StorageMode string

const (
	StoragePrivate StorageMode = "private"
	StoragePublic  StorageMode = "public"
)

// ParseStorageMode accepts "private" or "public" (case-insensitive). An empty
// string yields the private default.
func ParseStorageMode(s string) (StorageMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(StoragePrivate):
		return StoragePrivate, nil
	case string(StoragePublic):
		return StoragePublic, nil
	default:
		return "", fmt.Errorf("%w: unknown storage mode %q", ErrValidation, s)
	}
}

// AccountID identifies an account on the ledger. Bits 61-60 carry the storage
// mode: 00 public, 10 private. The other two combinations are invalid.
type AccountID uint64

const (
	storageShift       = 60
	storageMask        = uint64(0x3) << storageShift
	storagePublicBits  = uint64(0x0) << storageShift
	storagePrivateBits = uint64(0x2) << storageShift
	accountIDHexLen    = 16
)

// NewAccountID forces the storage mode bits of raw.
func NewAccountID(raw uint64, mode StorageMode) AccountID {
	raw &^= storageMask
	if mode == StoragePublic {
		return AccountID(raw | storagePublicBits)
	}
	return AccountID(raw | storagePrivateBits)
}

// ParseAccountID parses the canonical "0x" + 16 hex digit form.
func ParseAccountID(s string) (AccountID, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return 0, fmt.Errorf("%w: %q: missing 0x prefix", ErrInvalidAccountID, s)
	}
	digits := s[2:]
	if len(digits) != accountIDHexLen {
		return 0, fmt.Errorf("%w: %q: expected %d hex digits", ErrInvalidAccountID, s, accountIDHexLen)
	}
	raw, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidAccountID, s, err)
	}
	id := AccountID(raw)
	if _, ok := id.storageMode(); !ok {
		return 0, fmt.Errorf("%w: %q: invalid storage mode bits", ErrInvalidAccountID, s)
	}
	return id, nil
}

// MustParseAccountID panics on malformed input. Intended for constants in tests.
func MustParseAccountID(s string) AccountID {
	id, err := ParseAccountID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id AccountID) storageMode() (StorageMode, bool) {
	switch uint64(id) & storageMask {
	case storagePublicBits:
		return StoragePublic, true
	case storagePrivateBits:
		return StoragePrivate, true
	default:
		return "", false
	}
}

// StorageMode reports the visibility encoded in the identifier.
func (id AccountID) StorageMode() StorageMode {
	mode, _ := id.storageMode()
	return mode
}

func (id AccountID) String() string {
	return fmt.Sprintf("0x%016x", uint64(id))
}

func (id AccountID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *AccountID) UnmarshalText(b []byte) error {
	parsed, err := ParseAccountID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NoteID is the content address of a note.
type NoteID [32]byte

// ParseNoteID parses "0x" + 64 hex digits.
func ParseNoteID(s string) (NoteID, error) {
	var id NoteID
	if err := parseWord(id[:], s); err != nil {
		return NoteID{}, fmt.Errorf("%w: %q: %v", ErrInvalidNoteID, s, err)
	}
	return id, nil
}

func (id NoteID) String() string { return formatWord(id[:]) }
func (id NoteID) IsZero() bool { return id == NoteID{} }
func (id NoteID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *NoteID) UnmarshalText(b []byte) error {
	parsed, err := ParseNoteID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// TransactionID is the content address of an executed transaction.
type TransactionID [32]byte

// ParseTransactionID parses "0x" + 64 hex digits.
func ParseTransactionID(s string) (TransactionID, error) {
	var id TransactionID
	if err := parseWord(id[:], s); err != nil {
		return TransactionID{}, fmt.Errorf("%w: invalid transaction id %q: %v", ErrValidation, s, err)
	}
	return id, nil
}

func (id TransactionID) String() string { return formatWord(id[:]) }
func (id TransactionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *TransactionID) UnmarshalText(b []byte) error {
	parsed, err := ParseTransactionID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Serial is the per-note randomness that makes otherwise identical notes distinct.
type Serial [32]byte

func (s Serial) MarshalText() ([]byte, error) { return []byte(formatWord(s[:])), nil }

func (s *Serial) UnmarshalText(b []byte) error {
	return parseWord(s[:], string(b))
}

func formatWord(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func parseWord(dst []byte, s string) error {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") {
		return fmt.Errorf("missing 0x prefix")
	}
	if len(s)-2 != 2*len(dst) {
		return fmt.Errorf("expected %d hex digits", 2*len(dst))
	}
	_, err := hex.Decode(dst, []byte(s[2:]))
	return err
}
