package def

import (
	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// CompileCUE compiles a CUE-authored game definition into the same typed
// Definition produced by Parse. CUE lets authors factor out defaults and
// constraints; the exported concrete value must conform to the JSON schema,
// so a compiled definition and its exported JSON are interchangeable.
//
// filename is used in CUE diagnostics only.
func CompileCUE(src []byte, filename string) (*Definition, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, cueSchemaErr(err)
	}

	// Every field must resolve to a concrete value before export.
	if err := v.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return nil, cueSchemaErr(err)
	}

	data, err := v.MarshalJSON()
	if err != nil {
		return nil, cueSchemaErr(err)
	}

	return Parse(data)
}

// ExportJSON compiles CUE source and returns the normalized JSON form of
// the definition, for writing alongside or instead of the CUE source.
func ExportJSON(src []byte, filename string) ([]byte, error) {
	d, err := CompileCUE(src, filename)
	if err != nil {
		return nil, err
	}
	return MarshalIndent(d)
}

func cueSchemaErr(err error) *SchemaError {
	return schemaErr(ErrCodeBadCUE, "", "cue: %s", cueerrors.Details(err, nil))
}
