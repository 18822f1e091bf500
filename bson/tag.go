// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package bson implements a streaming, incremental BSON codec: a
// reentrant decoder that consumes arbitrary byte chunks and emits a
// sequence of typed events, a random-access reader over a complete
// document buffer, and a writer that builds BSON documents with
// back-patched lengths.
//
// The package performs no I/O. Callers own their own byte buffers and
// feed them to a Reader or build them with a Writer.
package bson

import "fmt"

// Tag is the one-byte type discriminant that precedes every BSON
// element's key.
type Tag int8

// Recognized BSON tags. Values match the wire format exactly.
const (
	TagDouble      Tag = 0x01
	TagUtf8        Tag = 0x02
	TagDocument    Tag = 0x03
	TagArray       Tag = 0x04
	TagBinData     Tag = 0x05
	TagObjectId    Tag = 0x07
	TagBool        Tag = 0x08
	TagUtcDatetime Tag = 0x09
	TagNull        Tag = 0x0A
	TagRegexp      Tag = 0x0B
	TagJs          Tag = 0x0D
	TagScopedJs    Tag = 0x0F
	TagInt32       Tag = 0x10
	TagTimestamp   Tag = 0x11
	TagInt64       Tag = 0x12
	TagMinKey      Tag = -1
	TagMaxKey      Tag = 0x7F
)

// ObjectIDLen is the size, in bytes, of an ObjectId value.
const ObjectIDLen = 12

// ToTag converts a raw byte read off the wire into a Tag. Unknown or
// out-of-range bytes, and the two sentinel tags themselves, are never
// returned as a "valid" tag by this function's callers without an
// explicit check — ToTag returns TagMinKey for anything it doesn't
// recognize, which the reader treats as an error signal.
func ToTag(c byte) Tag {
	sc := int8(c)
	if sc <= int8(TagMinKey) || sc >= int8(TagMaxKey) {
		return TagMinKey
	}
	switch Tag(sc) {
	case TagDouble, TagUtf8, TagDocument, TagArray, TagBinData, TagObjectId,
		TagBool, TagUtcDatetime, TagNull, TagInt32, TagTimestamp, TagInt64,
		TagRegexp, TagJs, TagScopedJs:
		return Tag(sc)
	default:
		return TagMinKey
	}
}

// String implements fmt.Stringer.
func (t Tag) String() string {
	switch t {
	case TagDouble:
		return "Double"
	case TagUtf8:
		return "Utf8"
	case TagDocument:
		return "Document"
	case TagArray:
		return "Array"
	case TagBinData:
		return "BinData"
	case TagObjectId:
		return "ObjectId"
	case TagBool:
		return "Bool"
	case TagUtcDatetime:
		return "UtcDatetime"
	case TagNull:
		return "Null"
	case TagRegexp:
		return "Regexp"
	case TagJs:
		return "Js"
	case TagScopedJs:
		return "ScopedJs"
	case TagInt32:
		return "Int32"
	case TagTimestamp:
		return "Timestamp"
	case TagInt64:
		return "Int64"
	case TagMinKey:
		return "MinKey"
	case TagMaxKey:
		return "MaxKey"
	default:
		return fmt.Sprintf("Tag(%d)", int8(t))
	}
}

// BindataSubtype is the one-byte subtype discriminant of a BinData
// value.
type BindataSubtype byte

// Recognized BinData subtypes.
const (
	SubtypeGeneric  BindataSubtype = 0x00
	SubtypeFunction BindataSubtype = 0x01
	SubtypeBinary   BindataSubtype = 0x02 // deprecated; embeds a redundant int32 length, treated as opaque
	SubtypeUUIDOld  BindataSubtype = 0x03 // deprecated in favor of SubtypeUUID
	SubtypeUUID     BindataSubtype = 0x04
	SubtypeMD5      BindataSubtype = 0x05
	SubtypeMinUser  BindataSubtype = 0x80 // lowest tag acceptable for user-defined subtypes
	SubtypeMaxUser  BindataSubtype = 0xFF
)

// String implements fmt.Stringer.
func (s BindataSubtype) String() string {
	switch s {
	case SubtypeGeneric:
		return "Generic"
	case SubtypeFunction:
		return "Function"
	case SubtypeBinary:
		return "BinaryOld"
	case SubtypeUUIDOld:
		return "UUIDOld"
	case SubtypeUUID:
		return "UUID"
	case SubtypeMD5:
		return "MD5"
	default:
		if s >= SubtypeMinUser {
			return fmt.Sprintf("UserDefined(0x%02x)", byte(s))
		}
		return fmt.Sprintf("BindataSubtype(0x%02x)", byte(s))
	}
}
