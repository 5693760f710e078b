// Package proto defines the json messages exchanged on the position stream and
// the pure functions that encode and decode them.
//
// Every message is one json object tagged by its "type" field. Decoding is
// tolerant of schema evolution: unknown fields are ignored, optional fields may
// be missing or null, retired tags and field names still resolve, and fields
// added to Limits later default to zero. Encoding only ever produces the current
// form. Nothing in this package keeps state between calls.
package proto

import "encoding/json"

const tagField = "type"

func readEnvelope(data []byte, resolve func(string) (string, bool)) (*fieldReader, error) {
	r, err := readObject(data)
	if err != nil {
		return nil, err
	}
	raw, _, ok := r.lookup(tagField)
	if !ok {
		return nil, &DecodeError{Field: tagField, Err: ErrMissingTag}
	}
	var tag string
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, &DecodeError{Field: tagField, Err: ErrUnknownTag, Detail: "type is not a string"}
	}
	current, ok := resolve(tag)
	if !ok {
		return nil, &DecodeError{Field: tagField, Err: ErrUnknownTag, Detail: quote(tag)}
	}
	r.state.tag = current
	return r, nil
}

// Direction tells which side of the stream a tag belongs to.
type Direction string

const (
	ClientToServer Direction = "client"
	ServerToClient Direction = "server"
)

// PeekType resolves the tag of an encoded message without decoding its fields.
// Client tags and aliases are tried before server tags.
func PeekType(data []byte) (string, Direction, error) {
	if r, err := readEnvelope(data, ResolveClientTag); err == nil {
		return r.state.tag, ClientToServer, nil
	}
	r, err := readEnvelope(data, ResolveServerTag)
	if err != nil {
		return "", "", err
	}
	return r.state.tag, ServerToClient, nil
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
