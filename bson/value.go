// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Value is a borrowed, zero-copy view into a complete BSON document or
// array buffer: a tag plus the value's own bytes (for Document/Array,
// that includes the value's own length prefix and terminating NUL).
// It never allocates and never outlives the buffer it was built from.
type Value struct {
	data []byte
	tag  Tag
}

// NewValue builds a Value of the given tag from data, validating that
// data is at least as long as the tag's value requires and, for
// length-prefixed tags, that the declared length fits within data and
// the value is properly framed. It returns the zero Value (Empty()
// true) on any validation failure.
func NewValue(data []byte, tag Tag) Value {
	n := getValueLength(tag, data)
	if n < 0 {
		return Value{}
	}
	return Value{data: data[:n], tag: tag}
}

// Tag returns the value's BSON type tag.
func (v Value) Tag() Tag { return v.tag }

// Empty reports whether v is the zero Value.
func (v Value) Empty() bool { return v.data == nil }

// Raw returns the value's own framed bytes: for Document/Array this is
// the length prefix, every element, and the terminating NUL; for
// Utf8/Js/BinData it includes the leading length prefix (and, for
// Utf8/Js, the trailing NUL); for fixed-size tags it's exactly the
// value's bytes. Most callers want Bytes, Int32, Int64, etc. instead.
func (v Value) Raw() []byte { return v.data }

// Bytes returns the value's logical payload: the UTF-8 string
// (without its length prefix or trailing NUL) for Utf8/Js, or the
// binary payload (without its length prefix or subtype byte) for
// BinData. For any other tag it behaves like Raw.
func (v Value) Bytes() []byte {
	switch v.tag {
	case TagUtf8, TagJs:
		return v.data[4 : len(v.data)-1]
	case TagBinData:
		return v.data[5:]
	default:
		return v.data
	}
}

// Int32 interprets the value as a little-endian int32. The caller must
// check Tag() first.
func (v Value) Int32() int32 {
	return int32(binary.LittleEndian.Uint32(v.data[:4]))
}

// Int64 interprets the value as a little-endian int64.
func (v Value) Int64() int64 {
	return int64(binary.LittleEndian.Uint64(v.data[:8]))
}

// Double interprets the value as an IEEE-754 double.
func (v Value) Double() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(v.data[:8]))
}

// Bool interprets the value as a boolean: any byte whose signed
// representation is positive is true, matching the writer/reader's
// encoding of `false` as 0x00 and `true` as 0x01.
func (v Value) Bool() bool {
	return int8(v.data[0]) > 0
}

// UtcDatetime interprets the value as milliseconds since the Unix
// epoch.
func (v Value) UtcDatetime() int64 { return v.Int64() }

// Timestamp interprets the value as an opaque 8-byte timestamp.
func (v Value) Timestamp() int64 { return v.Int64() }

// ObjectID copies out the value's 12-byte ObjectId.
func (v Value) ObjectID() [ObjectIDLen]byte {
	var oid [ObjectIDLen]byte
	copy(oid[:], v.data[:ObjectIDLen])
	return oid
}

// BinSubtype returns a BinData value's subtype byte.
func (v Value) BinSubtype() BindataSubtype {
	return BindataSubtype(v.data[4])
}

// GetField looks up needle in a Document value by linear scan,
// comparing keys byte-by-byte without allocating. It returns the zero
// Value if v is not a Document, or needle isn't found, or the document
// is malformed.
func (v Value) GetField(needle string) Value {
	if v.tag != TagDocument {
		return Value{}
	}
	data := v.data
	end := len(data)
	curs := 4
	for curs < end {
		tag := ToTag(data[curs])
		if tag == TagMinKey {
			return Value{}
		}
		curs++
		matched := true
		ki := 0
		for {
			if curs >= end-1 {
				return Value{}
			}
			c := data[curs]
			if c == 0 {
				break
			}
			if matched && (ki >= len(needle) || needle[ki] != c) {
				matched = false
			}
			curs++
			ki++
		}
		if matched && ki != len(needle) {
			matched = false
		}
		curs++ // skip the key's NUL terminator
		size := getValueLength(tag, data[curs:end])
		if size < 0 {
			return Value{}
		}
		if matched {
			return Value{data: data[curs : curs+int(size)], tag: tag}
		}
		curs += int(size)
	}
	return Value{}
}

// String renders a best-effort debug form of the value: its tag and,
// for simple scalar tags, the decoded value.
func (v Value) String() string {
	if v.Empty() {
		return "Value(<empty>)"
	}
	switch v.tag {
	case TagInt32:
		return fmt.Sprintf("Int32(%d)", v.Int32())
	case TagInt64:
		return fmt.Sprintf("Int64(%d)", v.Int64())
	case TagDouble:
		return fmt.Sprintf("Double(%g)", v.Double())
	case TagBool:
		return fmt.Sprintf("Bool(%v)", v.Bool())
	case TagNull:
		return "Null"
	case TagUtf8:
		return fmt.Sprintf("Utf8(%q)", v.Bytes())
	case TagObjectId:
		return fmt.Sprintf("ObjectId(% x)", v.ObjectID())
	case TagDocument:
		return fmt.Sprintf("Document(%d bytes)", len(v.data))
	case TagArray:
		return fmt.Sprintf("Array(%d bytes)", len(v.data))
	case TagBinData:
		return fmt.Sprintf("BinData(%s, %d bytes)", v.BinSubtype(), len(v.Bytes()))
	default:
		return fmt.Sprintf("%s(%d bytes)", v.tag, len(v.data))
	}
}

// getValueLength reports how many leading bytes of data the value of
// the given tag occupies, or -1 if data is too short or the value is
// malformed. Document, Array, Utf8, and Js values carry an explicit
// little-endian int32 length and must be terminated by a NUL at the
// offset it implies. For Document/Array the int32 counts the 4-byte
// length field itself; for Utf8/Js it counts the payload plus the
// trailing NUL but not the length field, so 4 is added to it. BinData
// also carries a length prefix (counting only the payload, so the
// length field and the subtype byte are added on top) but
// — unlike Utf8/Js — is not NUL-terminated, so its length is not
// validated against a trailing NUL byte.
func getValueLength(tag Tag, data []byte) int32 {
	size := int32(len(data))
	var res int32
	checkNul := false
	switch tag {
	case TagDocument, TagArray:
		if size < 5 {
			return -1
		}
		res = int32(binary.LittleEndian.Uint32(data[:4]))
		if res <= 0 {
			return -1
		}
		checkNul = true
	case TagUtf8, TagJs:
		if size < 5 {
			return -1
		}
		res = int32(binary.LittleEndian.Uint32(data[:4]))
		if res <= 0 {
			return -1
		}
		res += 4
		checkNul = true
	case TagBinData:
		if size < 5 {
			return -1
		}
		res = int32(binary.LittleEndian.Uint32(data[:4]))
		if res < 0 {
			return -1
		}
		res += 5
	case TagDouble:
		res = 8
	case TagObjectId:
		res = ObjectIDLen
	case TagBool:
		res = 1
	case TagInt32:
		res = 4
	case TagInt64, TagUtcDatetime, TagTimestamp:
		res = 8
	case TagNull:
		res = 0
	default: // Regexp, ScopedJs, MinKey, MaxKey, and anything unrecognized
		return -1
	}
	if res > size {
		return -1
	}
	if checkNul && data[res-1] != 0 {
		return -1
	}
	return res
}
