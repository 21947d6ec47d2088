package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Encoding is a compact, schema-less binary format: presence/variant
// discriminant bytes, uvarint-encoded integers, and uvarint-length-prefixed
// byte strings. It deliberately carries no field names or type tags beyond
// the discriminants below, matching the "no schema on the wire" contract.

const (
	presenceAbsent byte = 0
	presentPresent byte = 1
)

func putString(buf *bytes.Buffer, s string) {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], uint64(len(s)))
	buf.Write(scratch[:n])
	buf.WriteString(s)
}

func getString(r *bytes.Reader) (string, error) {
	l, err := binary.ReadUvarint(r)
	if err != nil {
		return "", fmt.Errorf("%w: string length: %v", ErrDecode, err)
	}
	if uint64(r.Len()) < l {
		return "", fmt.Errorf("%w: string truncated", ErrDecode)
	}
	if l == 0 {
		// bytes.Reader.Read reports io.EOF for an empty read at the end of
		// the payload, so an empty trailing string is returned directly.
		return "", nil
	}
	buf := make([]byte, l)
	if _, err := r.Read(buf); err != nil {
		return "", fmt.Errorf("%w: string bytes: %v", ErrDecode, err)
	}
	return string(buf), nil
}

func putUvarint(buf *bytes.Buffer, v uint64) {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], v)
	buf.Write(scratch[:n])
}

func getUvarint(r *bytes.Reader) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, fmt.Errorf("%w: uvarint: %v", ErrDecode, err)
	}
	return v, nil
}

func putVarint(buf *bytes.Buffer, v int64) {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutVarint(scratch[:], v)
	buf.Write(scratch[:n])
}

func getVarint(r *bytes.Reader) (int64, error) {
	v, err := binary.ReadVarint(r)
	if err != nil {
		return 0, fmt.Errorf("%w: varint: %v", ErrDecode, err)
	}
	return v, nil
}

func putOptional(buf *bytes.Buffer, present bool) {
	if present {
		buf.WriteByte(presentPresent)
	} else {
		buf.WriteByte(presenceAbsent)
	}
}

func getOptional(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, fmt.Errorf("%w: presence byte: %v", ErrDecode, err)
	}
	return b == presentPresent, nil
}

// EncodeClaims serializes Claims to its compact binary form.
func EncodeClaims(c Claims) []byte {
	var buf bytes.Buffer
	putString(&buf, c.Hostname)

	putOptional(&buf, c.DisplayName != nil)
	if c.DisplayName != nil {
		putString(&buf, *c.DisplayName)
	}

	putOptional(&buf, c.Source != nil)
	if c.Source != nil {
		putUvarint(&buf, uint64(c.Source.PID))
		putString(&buf, c.Source.Name)
		putVarint(&buf, c.Source.Start)
	}
	return buf.Bytes()
}

// DecodeClaims parses the compact binary form produced by EncodeClaims.
func DecodeClaims(payload []byte) (Claims, error) {
	r := bytes.NewReader(payload)
	var c Claims

	hostname, err := getString(r)
	if err != nil {
		return Claims{}, err
	}
	c.Hostname = hostname

	hasDisplay, err := getOptional(r)
	if err != nil {
		return Claims{}, err
	}
	if hasDisplay {
		name, err := getString(r)
		if err != nil {
			return Claims{}, err
		}
		c.DisplayName = &name
	}

	hasSource, err := getOptional(r)
	if err != nil {
		return Claims{}, err
	}
	if hasSource {
		pid, err := getUvarint(r)
		if err != nil {
			return Claims{}, err
		}
		name, err := getString(r)
		if err != nil {
			return Claims{}, err
		}
		start, err := getVarint(r)
		if err != nil {
			return Claims{}, err
		}
		c.Source = &SourceInfo{PID: uint32(pid), Name: name, Start: start}
	}

	return c, nil
}

// EncodeRecord serializes a Record to its compact binary form.
func EncodeRecord(rec Record) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(rec.Kind))
	putVarint(&buf, rec.TimestampMS)

	putOptional(&buf, rec.Level != nil)
	if rec.Level != nil {
		buf.WriteByte(byte(*rec.Level))
	}

	putString(&buf, rec.Source)

	putOptional(&buf, rec.Trace.SpanID != nil)
	if rec.Trace.SpanID != nil {
		putUvarint(&buf, *rec.Trace.SpanID)
	}
	putOptional(&buf, rec.Trace.ParentID != nil)
	if rec.Trace.ParentID != nil {
		putUvarint(&buf, *rec.Trace.ParentID)
	}

	putString(&buf, rec.Message)
	putString(&buf, rec.Fields)
	return buf.Bytes()
}

// DecodeRecord parses the compact binary form produced by EncodeRecord.
func DecodeRecord(payload []byte) (Record, error) {
	r := bytes.NewReader(payload)
	var rec Record

	kindByte, err := r.ReadByte()
	if err != nil {
		return Record{}, fmt.Errorf("%w: kind: %v", ErrDecode, err)
	}
	rec.Kind = Kind(kindByte)

	ts, err := getVarint(r)
	if err != nil {
		return Record{}, err
	}
	rec.TimestampMS = ts

	hasLevel, err := getOptional(r)
	if err != nil {
		return Record{}, err
	}
	if hasLevel {
		lb, err := r.ReadByte()
		if err != nil {
			return Record{}, fmt.Errorf("%w: level: %v", ErrDecode, err)
		}
		lvl := Level(lb)
		rec.Level = &lvl
	}

	source, err := getString(r)
	if err != nil {
		return Record{}, err
	}
	rec.Source = source

	hasSpan, err := getOptional(r)
	if err != nil {
		return Record{}, err
	}
	if hasSpan {
		v, err := getUvarint(r)
		if err != nil {
			return Record{}, err
		}
		rec.Trace.SpanID = &v
	}
	hasParent, err := getOptional(r)
	if err != nil {
		return Record{}, err
	}
	if hasParent {
		v, err := getUvarint(r)
		if err != nil {
			return Record{}, err
		}
		rec.Trace.ParentID = &v
	}

	message, err := getString(r)
	if err != nil {
		return Record{}, err
	}
	rec.Message = message

	fields, err := getString(r)
	if err != nil {
		return Record{}, err
	}
	rec.Fields = fields

	return rec, nil
}
