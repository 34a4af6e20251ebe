// Package schema validates documents against per-collection CUE
// definitions before they reach the store. Schemas are optional; a
// collection without one accepts any document shape.
package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// Validator holds one compiled collection schema.
type Validator struct {
	name   string
	schema cue.Value
	ctx    *cue.Context
}

// Compile builds a validator from CUE source. The source must define a
// single struct value; documents unify against it.
//
// Example source:
//
//	{
//		name: string
//		age:  int & >=0
//		...
//	}
func Compile(name, source string) (*Validator, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(source)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("schema for %s: %s", name, cueerrors.Details(err, nil))
	}
	return &Validator{name: name, schema: v, ctx: ctx}, nil
}

// Validate unifies a document against the schema and reports the first
// constraint violation. System fields (underscore-prefixed) are stripped
// before unification so schemas only describe user data.
func (v *Validator) Validate(doc map[string]any) error {
	user := make(map[string]any, len(doc))
	for k, val := range doc {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		user[k] = val
	}

	encoded := v.ctx.Encode(user)
	if err := encoded.Err(); err != nil {
		return fmt.Errorf("document for %s: %s", v.name, cueerrors.Details(err, nil))
	}
	unified := v.schema.Unify(encoded)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("document violates %s schema: %s", v.name, cueerrors.Details(err, nil))
	}
	return nil
}
