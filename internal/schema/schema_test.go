package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userSchema = `{
	name: string
	age:  int & >=0
}`

func TestCompileRejectsBadSource(t *testing.T) {
	_, err := Compile("users", `name: string &`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users")
}

func TestValidateAcceptsConformingDocument(t *testing.T) {
	v, err := Compile("users", userSchema)
	require.NoError(t, err)

	assert.NoError(t, v.Validate(map[string]any{"name": "Alice", "age": 34}))
}

func TestValidateRejectsWrongType(t *testing.T) {
	v, err := Compile("users", userSchema)
	require.NoError(t, err)

	err = v.Validate(map[string]any{"name": "Alice", "age": "old"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users schema")
}

func TestValidateRejectsConstraintViolation(t *testing.T) {
	v, err := Compile("users", userSchema)
	require.NoError(t, err)

	err = v.Validate(map[string]any{"name": "Alice", "age": -1})
	require.Error(t, err)
}

func TestValidateRequiresDeclaredFields(t *testing.T) {
	v, err := Compile("users", userSchema)
	require.NoError(t, err)

	err = v.Validate(map[string]any{"name": "Alice"})
	require.Error(t, err, "a declared non-optional field must be present")
}

func TestValidateAllowsOptionalFields(t *testing.T) {
	v, err := Compile("users", `{
		name: string
		bio?: string
	}`)
	require.NoError(t, err)

	assert.NoError(t, v.Validate(map[string]any{"name": "Alice"}))
	assert.Error(t, v.Validate(map[string]any{"name": "Alice", "bio": 7}))
}

func TestValidateStripsSystemFields(t *testing.T) {
	v, err := Compile("users", `{
		name: string
	}`)
	require.NoError(t, err)

	// _key is a storage concern, never part of the declared shape.
	assert.NoError(t, v.Validate(map[string]any{"_key": "u1", "name": "Alice"}))
}
