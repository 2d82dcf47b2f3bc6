package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
)

// Subject is a string map that remembers insertion order. Setting a key
// again replaces its value and keeps its original position.
type Subject struct {
	keys   []string
	values map[string]string
}

// NewSubject builds a Subject from alternating keys and values.
func NewSubject(pairs ...string) Subject {
	var s Subject
	for i := 0; i+1 < len(pairs); i += 2 {
		s.Set(pairs[i], pairs[i+1])
	}
	return s
}

func (s *Subject) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

func (s Subject) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s Subject) Keys() []string {
	return append([]string(nil), s.keys...)
}

func (s Subject) Len() int {
	return len(s.keys)
}

func (s Subject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(s.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalCBOR writes a definite-length map in insertion order. The header
// is framed by hand because encMode sorts map keys and has no ordered map
// type; encoding the subject as a Go map would lose the certificate's
// attribute order.
func (s Subject) MarshalCBOR() ([]byte, error) {
	var buf bytes.Buffer
	writeCBORHeader(&buf, 0xA0, uint64(len(s.keys)))
	for _, key := range s.keys {
		for _, str := range []string{key, s.values[key]} {
			b, err := encMode.Marshal(str)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
	}
	return buf.Bytes(), nil
}

func writeCBORHeader(buf *bytes.Buffer, major byte, n uint64) {
	switch {
	case n < 24:
		buf.WriteByte(major | byte(n))
	case n <= 0xFF:
		buf.WriteByte(major | 24)
		buf.WriteByte(byte(n))
	case n <= 0xFFFF:
		buf.WriteByte(major | 25)
		_ = binary.Write(buf, binary.BigEndian, uint16(n))
	case n <= 0xFFFFFFFF:
		buf.WriteByte(major | 26)
		_ = binary.Write(buf, binary.BigEndian, uint32(n))
	default:
		buf.WriteByte(major | 27)
		_ = binary.Write(buf, binary.BigEndian, n)
	}
}
