// Package secret holds credential values that must never end up in logs,
// error messages or dumped configuration.
package secret

import (
	"encoding/json"
	"fmt"
)

const mask = "**********"

// String is an opaque credential. Every rendering path (fmt verbs, JSON,
// YAML, text marshaling) prints a fixed mask; Reveal is the only way to
// read the value.
type String string

// Reveal returns the raw value. Call it only where the value is handed to a
// client constructor.
func (s String) Reveal() string {
	return string(s)
}

// IsZero reports whether no value was set.
func (s String) IsZero() bool {
	return s == ""
}

func (s String) String() string {
	if s == "" {
		return ""
	}
	return mask
}

func (s String) GoString() string {
	return fmt.Sprintf("secret.String(%q)", s.String())
}

// Format covers %v, %s, %q, %x and friends, which would otherwise bypass
// String for some verbs.
func (s String) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('#') {
			_, _ = fmt.Fprint(f, s.GoString())
			return
		}
		_, _ = fmt.Fprint(f, s.String())
	case 'q':
		_, _ = fmt.Fprintf(f, "%q", s.String())
	default:
		_, _ = fmt.Fprint(f, s.String())
	}
}

func (s String) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s String) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s String) MarshalYAML() (any, error) {
	return s.String(), nil
}
