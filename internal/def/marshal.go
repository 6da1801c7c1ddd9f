package def

import (
	"bytes"
	"encoding/json"
)

// MarshalIndent renders a Definition as normalized, indented JSON in the
// original wire shape. Parsing the output yields an equivalent Definition.
func MarshalIndent(d *Definition) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
