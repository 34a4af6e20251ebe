package engine

import (
	"encoding/base64"
	"fmt"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundtrip(t *testing.T) {
	in := Cursor{
		Table:  "users",
		Column: "age",
		Desc:   true,
		Value:  "42",
		PK:     "u17",
		Batch:  25,
	}
	token, err := EncodeCursor(in)
	require.NoError(t, err)
	assert.NotContains(t, token, " ")

	out, err := DecodeCursor(token)
	require.NoError(t, err)
	in.Version = 1
	assert.Equal(t, in, out)
}

func TestCursorNormalizesValue(t *testing.T) {
	// Decomposed e + combining acute normalizes to the precomposed form.
	token, err := EncodeCursor(Cursor{Table: "t", Value: "Café"})
	require.NoError(t, err)

	out, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "Café", out.Value)
}

func TestDecodeCursor_RejectsTampering(t *testing.T) {
	token, err := EncodeCursor(Cursor{Table: "users", Column: "age", Value: "3", PK: "a"})
	require.NoError(t, err)

	// Flip one payload character; the checksum no longer matches.
	flipped := []byte(token)
	if flipped[0] == 'A' {
		flipped[0] = 'B'
	} else {
		flipped[0] = 'A'
	}
	_, err = DecodeCursor(string(flipped))
	require.Error(t, err)
	assert.True(t, IsClientError(err))
	assert.Contains(t, err.Error(), "invalid cursor")
}

func TestDecodeCursor_RejectsMalformedTokens(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"no checksum separator", "eyJ2IjoxfQ"},
		{"bad base64", "!!!.00000000"},
		{"bad checksum digits", "eyJ2IjoxfQ.zzzz"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeCursor(tc.token)
			require.Error(t, err)
			assert.True(t, IsClientError(err), "malformed cursors are client errors")
		})
	}
}

func TestDecodeCursor_RejectsUnknownVersion(t *testing.T) {
	// A well-formed token whose payload claims a future layout version.
	payload := []byte(`{"v":9,"table":"t"}`)
	token := fmt.Sprintf("%s.%08x",
		base64.RawURLEncoding.EncodeToString(payload),
		crc32.ChecksumIEEE(payload))

	_, err := DecodeCursor(token)
	require.Error(t, err)
	assert.True(t, IsClientError(err))
	assert.Contains(t, err.Error(), "unsupported version")
}

func TestCursorAfterBoundary(t *testing.T) {
	asc := Cursor{Column: "age", Value: "21", PK: "a2"}
	assert.False(t, asc.afterBoundary("20", "a1"), "before the boundary value")
	assert.False(t, asc.afterBoundary("21", "a1"), "tie, smaller pk")
	assert.False(t, asc.afterBoundary("21", "a2"), "the boundary row itself")
	assert.True(t, asc.afterBoundary("21", "a3"), "tie, larger pk")
	assert.True(t, asc.afterBoundary("22", "a0"), "past the boundary value")

	desc := Cursor{Column: "age", Desc: true, Value: "21", PK: "a2"}
	assert.True(t, desc.afterBoundary("20", "a1"))
	assert.False(t, desc.afterBoundary("22", "a9"))
	assert.True(t, desc.afterBoundary("21", "a3"), "ties advance by pk ascending even when descending")

	pkOnly := Cursor{PK: "m"}
	assert.True(t, pkOnly.afterBoundary("", "n"))
	assert.False(t, pkOnly.afterBoundary("", "m"))
}

func TestCursorAfterBoundary_NumericComparison(t *testing.T) {
	c := Cursor{Column: "age", Value: "9", PK: "x"}
	assert.True(t, c.afterBoundary("10", "a"), "values compare numerically, not lexically")
}
