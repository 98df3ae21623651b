package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// FieldError describes one structural violation.
type FieldError struct {
	Path     string `json:"path"`
	Message  string `json:"message"`
	Expected string `json:"expected,omitempty"`
	Received string `json:"received,omitempty"`
}

func (e FieldError) String() string {
	path := e.Path
	if path == "" {
		path = "(root)"
	}
	return path + ": " + e.Message
}

// Errors joins field errors for display.
type Errors []FieldError

func (es Errors) Error() string {
	parts := make([]string, 0, len(es))
	for _, e := range es {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "; ")
}

// toJSON turns raw into bytes gjson can walk. Byte slices are taken as JSON
// text; anything else goes through encoding/json.
func toJSON(raw any) ([]byte, error) {
	var data []byte
	switch v := raw.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	case gjson.Result:
		data = []byte(v.Raw)
	default:
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("value is not JSON-serialisable: %w", err)
		}
		data = b
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}
	return data, nil
}

func receivedType(r gjson.Result) string {
	if !r.Exists() {
		return "missing"
	}
	switch r.Type {
	case gjson.Null:
		return "null"
	case gjson.True, gjson.False:
		return "boolean"
	case gjson.Number:
		return "number"
	case gjson.String:
		return "string"
	default:
		if r.IsArray() {
			return "array"
		}
		return "object"
	}
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}

type walker struct {
	partial bool
	errs    Errors
}

func (w *walker) fail(path string, s *Schema, r gjson.Result, msg string) {
	w.errs = append(w.errs, FieldError{
		Path:     path,
		Message:  msg,
		Expected: s.Describe(),
		Received: receivedType(r),
	})
}

func (w *walker) check(path string, s *Schema, r gjson.Result) {
	if s == nil || s.Kind == KindAny {
		return
	}
	if r.Type == gjson.Null {
		if s.Nullable || w.partial {
			return
		}
		w.fail(path, s, r, "expected "+s.Describe()+", received null")
		return
	}

	switch s.Kind {
	case KindObject:
		if !r.IsObject() {
			w.fail(path, s, r, "expected object, received "+receivedType(r))
			return
		}
		members := r.Map()
		for _, f := range s.Fields {
			child, ok := members[f.Name]
			if !ok {
				if f.Required && !w.partial {
					w.errs = append(w.errs, FieldError{
						Path:     joinPath(path, f.Name),
						Message:  "required",
						Expected: f.Schema.Describe(),
						Received: "missing",
					})
				}
				continue
			}
			w.check(joinPath(path, f.Name), f.Schema, child)
		}

	case KindArray:
		if !r.IsArray() {
			w.fail(path, s, r, "expected array, received "+receivedType(r))
			return
		}
		items := r.Array()
		if !w.partial && len(items) < s.MinItems {
			w.fail(path, s, r, fmt.Sprintf("expected at least %d items, received %d", s.MinItems, len(items)))
		}
		for i, item := range items {
			w.check(joinPath(path, strconv.Itoa(i)), s.Items, item)
		}

	case KindString:
		if r.Type != gjson.String {
			w.fail(path, s, r, "expected string, received "+receivedType(r))
			return
		}
		if w.partial {
			return
		}
		if s.NonEmpty && strings.TrimSpace(r.Str) == "" {
			w.fail(path, s, r, "must not be empty")
		}
		if len(s.Enum) > 0 && !contains(s.Enum, r.Str) {
			w.fail(path, s, r, fmt.Sprintf("invalid enum value %q", r.Str))
		}

	case KindNumber, KindInteger:
		if r.Type != gjson.Number {
			w.fail(path, s, r, "expected "+string(s.Kind)+", received "+receivedType(r))
			return
		}
		if s.Kind == KindInteger && r.Num != math.Trunc(r.Num) {
			w.fail(path, s, r, "expected integer, received "+r.Raw)
			return
		}
		if w.partial || s.Min == nil {
			return
		}
		if s.ExclMin && r.Num <= *s.Min {
			w.fail(path, s, r, fmt.Sprintf("must be greater than %g", *s.Min))
		} else if !s.ExclMin && r.Num < *s.Min {
			w.fail(path, s, r, fmt.Sprintf("must be at least %g", *s.Min))
		}

	case KindBoolean:
		if r.Type != gjson.True && r.Type != gjson.False {
			w.fail(path, s, r, "expected boolean, received "+receivedType(r))
		}
	}
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// Check validates raw against s and returns every violation found.
func Check(s *Schema, raw any) Errors {
	return walk(s, raw, false)
}

// CheckPartial only verifies the types of fields that are present. Missing
// required fields, bounds and enums are ignored.
func CheckPartial(s *Schema, raw any) Errors {
	return walk(s, raw, true)
}

func walk(s *Schema, raw any, partial bool) Errors {
	data, err := toJSON(raw)
	if err != nil {
		return Errors{{Message: err.Error(), Expected: s.Describe()}}
	}
	w := &walker{partial: partial}
	w.check("", s, gjson.ParseBytes(data))
	return w.errs
}
