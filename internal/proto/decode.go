package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"unicode/utf8"
)

type decodeState struct {
	tag string
	err *DecodeError
}

// fieldReader reads typed fields out of one json object. The first failure is
// kept on the shared state and every later read becomes a no-op, so decoders
// can read all fields in a row and check once at the end.
type fieldReader struct {
	state  *decodeState
	path   string
	fields map[string]json.RawMessage
}

// readObject parses the top-level object. encoding/json would silently replace
// invalid utf-8 with U+FFFD, so the bytes are checked first.
func readObject(data []byte) (*fieldReader, error) {
	if !utf8.Valid(data) {
		return nil, &DecodeError{Err: ErrSyntax, Detail: "invalid utf-8"}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &DecodeError{Err: ErrNotObject, Detail: "got json " + typeErr.Value}
		}
		return nil, &DecodeError{Err: ErrSyntax, Cause: err}
	}
	if fields == nil {
		return nil, &DecodeError{Err: ErrNotObject, Detail: "got json null"}
	}
	if key, dup := duplicateKey(data); dup {
		return nil, &DecodeError{Field: key, Err: ErrInvalidField, Detail: "duplicate key"}
	}
	return &fieldReader{state: &decodeState{}, fields: fields}, nil
}

// duplicateKey reports the first key that occurs twice in the json object raw.
// Maps keep only the last occurrence, which would let a second "type" retag a
// message.
func duplicateKey(raw []byte) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return "", false
	}
	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		key, ok := tok.(string)
		if !ok {
			return "", false
		}
		if _, dup := seen[key]; dup {
			return key, true
		}
		seen[key] = struct{}{}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return "", false
		}
	}
	return "", false
}

func (r *fieldReader) failed() bool {
	return r.state.err != nil
}

func (r *fieldReader) fieldPath(name string) string {
	if r.path == "" {
		return name
	}
	return r.path + "." + name
}

func (r *fieldReader) fail(sentinel error, name, detail string, cause error) {
	if r.state.err != nil {
		return
	}
	r.state.err = &DecodeError{
		Type:   r.state.tag,
		Field:  r.fieldPath(name),
		Err:    sentinel,
		Cause:  cause,
		Detail: detail,
	}
}

func (r *fieldReader) missing(name string) {
	r.fail(ErrMissingField, name, "", nil)
}

func (r *fieldReader) invalid(name, detail string) {
	r.fail(ErrInvalidField, name, detail, nil)
}

// lookup returns the first of names whose key is present with a non-null value.
func (r *fieldReader) lookup(names ...string) (json.RawMessage, string, bool) {
	for _, name := range names {
		raw, ok := r.fields[name]
		if !ok || isNull(raw) {
			continue
		}
		return raw, name, true
	}
	return nil, "", false
}

func (r *fieldReader) child(name string, raw json.RawMessage) (*fieldReader, bool) {
	if !isKind(raw, '{') {
		r.invalid(name, "expected object")
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		r.fail(ErrInvalidField, name, "expected object", err)
		return nil, false
	}
	if key, dup := duplicateKey(raw); dup {
		r.fail(ErrInvalidField, name+"."+key, "duplicate key", nil)
		return nil, false
	}
	return &fieldReader{state: r.state, path: r.fieldPath(name), fields: fields}, true
}

func (r *fieldReader) object(name string) *fieldReader {
	if r.failed() {
		return nil
	}
	raw, _, ok := r.lookup(name)
	if !ok {
		r.missing(name)
		return nil
	}
	child, ok := r.child(name, raw)
	if !ok {
		return nil
	}
	return child
}

func (r *fieldReader) optionalObject(name string) (*fieldReader, bool) {
	if r.failed() {
		return nil, false
	}
	raw, _, ok := r.lookup(name)
	if !ok {
		return nil, false
	}
	return r.child(name, raw)
}

// stringList accepts either a single string or an array of strings under the
// first present name. A single string becomes a one-element list and an empty
// array becomes nil.
func (r *fieldReader) stringList(names ...string) []string {
	if r.failed() {
		return nil
	}
	raw, name, ok := r.lookup(names...)
	if !ok {
		r.missing(names[0])
		return nil
	}
	if isKind(raw, '"') {
		var one string
		if err := json.Unmarshal(raw, &one); err != nil {
			r.fail(ErrInvalidField, name, "", err)
			return nil
		}
		return []string{one}
	}
	var items []json.RawMessage
	if !isKind(raw, '[') || json.Unmarshal(raw, &items) != nil {
		r.invalid(name, "expected string or array of strings")
		return nil
	}
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if !isKind(item, '"') || json.Unmarshal(item, &s) != nil {
			r.invalid(name, "array element is not a string")
			return nil
		}
		out = append(out, s)
	}
	return out
}

func required[T any](r *fieldReader, name string) T {
	var v T
	if r.failed() {
		return v
	}
	raw, _, ok := r.lookup(name)
	if !ok {
		r.missing(name)
		return v
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		r.fail(ErrInvalidField, name, "", err)
	}
	return v
}

func optional[T any](r *fieldReader, name string) *T {
	if r.failed() {
		return nil
	}
	raw, _, ok := r.lookup(name)
	if !ok {
		return nil
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		r.fail(ErrInvalidField, name, "", err)
		return nil
	}
	return v
}

// defaulted reads a field added after the first protocol release; older peers
// omit it and the zero value applies.
func defaulted[T any](r *fieldReader, name string) T {
	if v := optional[T](r, name); v != nil {
		return *v
	}
	var zero T
	return zero
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func isKind(raw json.RawMessage, first byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == first
}
