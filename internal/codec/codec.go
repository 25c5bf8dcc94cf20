// Package codec implements a declarative, table-driven binary codec: a
// message or command-class layout is declared as an ordered list of field
// descriptors rather than hand-written parse/serialize code. Each
// descriptor compiles to a pair of closures (read, write) that operate
// against a shared decode/encode scope, so fields declared earlier in a
// table can be referenced by expressions in fields declared later (a
// length prefix, a presence flag, a computed virtual field).
package codec

import "fmt"

// State is the decode/encode scope for one record: field values read so
// far, or supplied by the caller before encoding, keyed by field name.
// Virtual fields (computed at encode time, parsed like any other field at
// decode time) live in the same map as ordinary fields.
type State map[string]any

// Prim is a primitive value reader/writer pair, operating on a raw value
// rather than a named field. Field binds a Prim to a name in a State;
// Optional and Array embed a Prim directly, since the items they contain
// are not independently named.
type Prim struct {
	Read  func(st State, buf []byte, pos int) (int, any, error)
	Write func(st State, value any, buf []byte, pos int) ([]byte, int, error)
}

// Field is a named, positioned entry in a record's field table.
type Field struct {
	Name  string
	read  func(st State, buf []byte, pos int) (int, error)
	write func(st State, buf []byte, pos int) ([]byte, int, error)
}

// Named binds a Prim to a field: on decode its value is parsed and stored
// into state[name]; on encode its value is read back out of state[name].
func Named(name string, p Prim) Field {
	return Field{
		Name: name,
		read: func(st State, buf []byte, pos int) (int, error) {
			np, v, err := p.Read(st, buf, pos)
			if err != nil {
				return pos, err
			}
			if name != "" {
				st[name] = v
			}
			return np, nil
		},
		write: func(st State, buf []byte, pos int) ([]byte, int, error) {
			return p.Write(st, st[name], buf, pos)
		},
	}
}

// Computed binds a Prim to a field whose wire bytes are parsed normally on
// decode, but whose value on encode comes from expr rather than from a
// caller-supplied field — a length prefix or other virtual field the
// caller never sets directly (spec's "virtualfield").
func Computed(name string, expr Expr, p Prim) Field {
	return Field{
		Name: name,
		read: func(st State, buf []byte, pos int) (int, error) {
			np, v, err := p.Read(st, buf, pos)
			if err != nil {
				return pos, err
			}
			st[name] = v
			return np, nil
		},
		write: func(st State, buf []byte, pos int) ([]byte, int, error) {
			v := expr(st)
			st[name] = v
			return p.Write(st, v, buf, pos)
		},
	}
}

// Decode runs fields against data starting at position 0, returning the
// populated State and the final position. Trailing unconsumed bytes are
// not an error here; callers that care (top-level message decode) check
// len(data) against the returned position themselves.
func Decode(fields []Field, data []byte) (State, int, error) {
	st := State{}
	pos := 0
	for _, f := range fields {
		np, err := f.read(st, data, pos)
		if err != nil {
			return nil, pos, err
		}
		if np > len(data) {
			return nil, pos, fmt.Errorf("codec: position beyond data buffer")
		}
		pos = np
	}
	return st, pos, nil
}

// Encode runs fields against a freshly seeded state, returning the encoded
// bytes. seed supplies the caller's field values; computed/virtual fields
// overwrite their own key as they are produced.
func Encode(fields []Field, seed State) ([]byte, error) {
	st := State{}
	for k, v := range seed {
		st[k] = v
	}
	buf := make([]byte, 0, 32)
	pos := 0
	var err error
	for _, f := range fields {
		buf, pos, err = f.write(st, buf, pos)
		if err != nil {
			return nil, err
		}
	}
	return buf[:pos], nil
}

func ensureLen(buf []byte, n int) []byte {
	if len(buf) < n {
		grown := make([]byte, n)
		copy(grown, buf)
		return grown
	}
	return buf
}
