package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// orderedObject is a JSON object that remembers its key order.
// package.json and package-lock.json tables are order-significant for us:
// classification output follows lock file order.
type orderedObject struct {
	keys   []string
	values map[string]json.RawMessage
}

func (o *orderedObject) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	o.values = make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if _, seen := o.values[key]; !seen {
			o.keys = append(o.keys, key)
		}
		o.values[key] = raw
	}

	_, err = dec.Token()
	return err
}

// each visits the entries in document order
func (o *orderedObject) each(fn func(key string, raw json.RawMessage) error) error {
	for _, k := range o.keys {
		if err := fn(k, o.values[k]); err != nil {
			return err
		}
	}
	return nil
}

// ExactVersion strips leading caret and tilde range markers from an npm
// version. exact reports whether what remains is a plain semver version the
// registry can be queried with.
func ExactVersion(version string) (v string, exact bool) {
	v = strings.TrimLeft(strings.TrimSpace(version), "^~")
	return v, semver.IsValid("v" + v)
}
