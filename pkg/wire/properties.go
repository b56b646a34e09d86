package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Properties is the serialized map carried between the variable headers and
// the body of a packet. This package defines its own compact,
// self-describing encoding sufficient to round-trip the property types this
// client actually sets: strings, 32/64-bit integers, bools, float64s, and
// raw byte blobs.
type Properties map[string]any

type propType uint8

const (
	propTypeString propType = iota + 1
	propTypeInt32
	propTypeInt64
	propTypeBool
	propTypeFloat64
	propTypeBytes
)

// Encode serializes p into its wire form.
func (p Properties) Encode() ([]byte, error) {
	var buf bytes.Buffer
	count := uint32(len(p))
	if err := binary.Write(&buf, binary.BigEndian, count); err != nil {
		return nil, err
	}
	for k, v := range p {
		if len(k) > 0xFFFF {
			return nil, fmt.Errorf("wire: property key %q too long", k)
		}
		binary.Write(&buf, binary.BigEndian, uint16(len(k)))
		buf.WriteString(k)
		switch val := v.(type) {
		case string:
			buf.WriteByte(byte(propTypeString))
			binary.Write(&buf, binary.BigEndian, uint32(len(val)))
			buf.WriteString(val)
		case int32:
			buf.WriteByte(byte(propTypeInt32))
			binary.Write(&buf, binary.BigEndian, val)
		case int64:
			buf.WriteByte(byte(propTypeInt64))
			binary.Write(&buf, binary.BigEndian, val)
		case int:
			buf.WriteByte(byte(propTypeInt64))
			binary.Write(&buf, binary.BigEndian, int64(val))
		case bool:
			buf.WriteByte(byte(propTypeBool))
			if val {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		case float64:
			buf.WriteByte(byte(propTypeFloat64))
			binary.Write(&buf, binary.BigEndian, val)
		case []byte:
			buf.WriteByte(byte(propTypeBytes))
			binary.Write(&buf, binary.BigEndian, uint32(len(val)))
			buf.Write(val)
		default:
			return nil, fmt.Errorf("wire: unsupported property type %T for key %q", v, k)
		}
	}
	return buf.Bytes(), nil
}

// DecodeProperties parses the wire form produced by Properties.Encode.
func DecodeProperties(data []byte) (Properties, error) {
	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		if len(data) == 0 {
			return Properties{}, nil
		}
		return nil, fmt.Errorf("wire: short properties header: %w", err)
	}
	props := make(Properties, count)
	for i := uint32(0); i < count; i++ {
		var klen uint16
		if err := binary.Read(r, binary.BigEndian, &klen); err != nil {
			return nil, fmt.Errorf("wire: truncated property key length: %w", err)
		}
		kbuf := make([]byte, klen)
		if _, err := readFull(r, kbuf); err != nil {
			return nil, fmt.Errorf("wire: truncated property key: %w", err)
		}
		var tag uint8
		if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
			return nil, fmt.Errorf("wire: truncated property type tag: %w", err)
		}
		switch propType(tag) {
		case propTypeString:
			var n uint32
			binary.Read(r, binary.BigEndian, &n)
			vbuf := make([]byte, n)
			readFull(r, vbuf)
			props[string(kbuf)] = string(vbuf)
		case propTypeInt32:
			var v int32
			binary.Read(r, binary.BigEndian, &v)
			props[string(kbuf)] = v
		case propTypeInt64:
			var v int64
			binary.Read(r, binary.BigEndian, &v)
			props[string(kbuf)] = v
		case propTypeBool:
			b, _ := r.ReadByte()
			props[string(kbuf)] = b != 0
		case propTypeFloat64:
			var v float64
			binary.Read(r, binary.BigEndian, &v)
			props[string(kbuf)] = v
		case propTypeBytes:
			var n uint32
			binary.Read(r, binary.BigEndian, &n)
			vbuf := make([]byte, n)
			readFull(r, vbuf)
			props[string(kbuf)] = vbuf
		default:
			return nil, fmt.Errorf("wire: unknown property type tag %d", tag)
		}
	}
	return props, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// GetString, GetInt64, GetBool are convenience accessors used throughout
// the protocol engine; they return the zero value and false if absent or of
// the wrong type.
func (p Properties) GetString(key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok
}

func (p Properties) GetInt32(key string) (int32, bool) {
	v, ok := p[key].(int32)
	return v, ok
}

func (p Properties) GetInt64(key string) (int64, bool) {
	v, ok := p[key].(int64)
	return v, ok
}

func (p Properties) GetBool(key string) (bool, bool) {
	v, ok := p[key].(bool)
	return v, ok
}
