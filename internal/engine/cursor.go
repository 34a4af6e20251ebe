package engine

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// cursorVersion tags the token layout. Tokens with any other version are
// rejected as malformed rather than decoded best-effort.
const cursorVersion = 1

// Cursor is the decoded pagination state: the last emitted (sort value,
// primary key) boundary plus the ordering it was produced under.
// Resumption is strictly after the boundary, with sort-value ties broken
// by primary key ascending regardless of the sort direction.
type Cursor struct {
	Version int    `json:"v"`
	Table   string `json:"table"`
	Column  string `json:"column"` // empty = primary-key ordering
	Desc    bool   `json:"desc"`
	Value   string `json:"value"`
	PK      string `json:"pk"`
	Batch   int    `json:"batch"`
}

// EncodeCursor produces the opaque token: base64url of the canonical
// payload plus a CRC32 checksum so garbled tokens fail deterministically,
// distinct from an empty result.
func EncodeCursor(c Cursor) (string, error) {
	c.Version = cursorVersion
	c.Value = norm.NFC.String(c.Value)

	payload, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	sum := crc32.ChecksumIEEE(payload)
	return fmt.Sprintf("%s.%08x", base64.RawURLEncoding.EncodeToString(payload), sum), nil
}

// DecodeCursor validates and decodes a token. Any malformed token - bad
// base64, bad checksum, wrong version - yields a client error.
func DecodeCursor(token string) (Cursor, error) {
	dot := strings.LastIndexByte(token, '.')
	if dot < 0 {
		return Cursor{}, NewCursorError("invalid cursor: missing checksum")
	}
	payload, err := base64.RawURLEncoding.DecodeString(token[:dot])
	if err != nil {
		return Cursor{}, NewCursorError("invalid cursor: %v", err)
	}
	var wantSum uint32
	if _, err := fmt.Sscanf(token[dot+1:], "%08x", &wantSum); err != nil {
		return Cursor{}, NewCursorError("invalid cursor: malformed checksum")
	}
	if crc32.ChecksumIEEE(payload) != wantSum {
		return Cursor{}, NewCursorError("invalid cursor: checksum mismatch")
	}

	var c Cursor
	if err := json.Unmarshal(payload, &c); err != nil {
		return Cursor{}, NewCursorError("invalid cursor: %v", err)
	}
	if c.Version != cursorVersion {
		return Cursor{}, NewCursorError("invalid cursor: unsupported version %d", c.Version)
	}
	return c, nil
}

// afterBoundary reports whether a row at (value, pk) lies strictly after
// the cursor boundary in the cursor's ordering. Ties on the sort value
// advance by primary key ascending for both sort directions.
func (c Cursor) afterBoundary(value, pk string) bool {
	if c.Column == "" {
		return pk > c.PK
	}
	cmp := compareScalarStrings(value, c.Value)
	if cmp == 0 {
		return pk > c.PK
	}
	if c.Desc {
		return cmp < 0
	}
	return cmp > 0
}
