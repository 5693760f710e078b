package proto

import (
	"bytes"
	"encoding/json"
	"errors"
)

// objectWriter emits one json object with keys in call order. Optional fields
// that are absent are skipped entirely, never written as null.
type objectWriter struct {
	buf bytes.Buffer
	n   int
	err error
}

type fieldError struct {
	field string
	err   error
}

func (e *fieldError) Error() string { return e.field + ": " + e.err.Error() }
func (e *fieldError) Unwrap() error { return e.err }

func newObjectWriter() *objectWriter {
	w := &objectWriter{}
	w.buf.WriteByte('{')
	return w
}

func (w *objectWriter) key(name string) {
	if w.n > 0 {
		w.buf.WriteByte(',')
	}
	w.buf.WriteByte('"')
	w.buf.WriteString(name)
	w.buf.WriteString(`":`)
	w.n++
}

func (w *objectWriter) field(name string, v any) {
	if w.err != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		w.err = &fieldError{field: name, err: err}
		return
	}
	w.key(name)
	w.buf.Write(data)
}

// nested writes the output of encode under name, prefixing the field path of
// any error it returns.
func (w *objectWriter) nested(name string, encode func() ([]byte, error)) {
	if w.err != nil {
		return
	}
	data, err := encode()
	if err != nil {
		var fe *fieldError
		if errors.As(err, &fe) {
			w.err = &fieldError{field: name + "." + fe.field, err: fe.err}
		} else {
			w.err = &fieldError{field: name, err: err}
		}
		return
	}
	w.key(name)
	w.buf.Write(data)
}

func (w *objectWriter) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	w.buf.WriteByte('}')
	return w.buf.Bytes(), nil
}

func optionalField[T any](w *objectWriter, name string, v *T) {
	if v != nil {
		w.field(name, *v)
	}
}

func optionalContext(w *objectWriter, name string, ctx MarketContext) {
	if ctx == nil {
		return
	}
	w.nested(name, func() ([]byte, error) {
		return encodeMarketContext(ctx)
	})
}

func encodeError(tag string, err error) error {
	out := &EncodeError{Type: tag, Err: ErrUnsupportedValue, Cause: err}
	var fe *fieldError
	if errors.As(err, &fe) {
		out.Field = fe.field
		out.Cause = fe.err
	}
	return out
}
