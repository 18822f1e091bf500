// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

// Emitter receives the stream of events produced by a Reader as it
// decodes a document. Implementations only need to override the
// methods they care about; embed NopEmitter to get no-op defaults for
// the rest.
//
// Chunked values (Utf8, Js, Bindata, FieldName) may be delivered across
// several calls as the underlying bytes arrive; a call with a nil
// slice marks the end of that value. A non-chunked field name (no
// trailing NUL split across calls) is still followed by the nil
// sentinel call.
type Emitter interface {
	// EmitOpenDoc is called right after the length prefix of a
	// document (the top-level one or a nested one) has been consumed.
	EmitOpenDoc()
	// EmitClose is called when a document or array's terminating NUL
	// byte is consumed, once per level.
	EmitClose()
	// EmitOpenArray is called right after the length prefix of a
	// nested array has been consumed.
	EmitOpenArray()
	EmitInt32(v int32)
	EmitInt64(v int64)
	EmitBool(v bool)
	EmitDouble(v float64)
	EmitNull()
	// EmitFieldName delivers a field name in one or more chunks,
	// terminated by a call with chunk == nil.
	EmitFieldName(chunk []byte)
	// EmitUtf8 delivers a UTF-8 string value in one or more chunks,
	// terminated by a call with chunk == nil.
	EmitUtf8(chunk []byte)
	// EmitJs delivers Javascript-code bytes the same way EmitUtf8
	// does. The bytes are not validated or interpreted.
	EmitJs(chunk []byte)
	EmitBindataSubtype(st BindataSubtype)
	// EmitBindata delivers binary-data payload bytes the same way
	// EmitUtf8 does. Unlike strings, binary data has no trailing NUL:
	// the chunk == nil call simply marks the end of the payload.
	EmitBindata(chunk []byte)
	EmitUtcDatetime(v int64)
	EmitTimestamp(v int64)
	EmitObjectId(oid [ObjectIDLen]byte)
	// EmitError is called once, right before Consume returns an error,
	// with the same error value.
	EmitError(err error)
}

// NopEmitter implements Emitter with no-op methods. Embed it in a
// struct that only overrides the events it needs.
type NopEmitter struct{}

func (NopEmitter) EmitOpenDoc()                  {}
func (NopEmitter) EmitClose()                    {}
func (NopEmitter) EmitOpenArray()                {}
func (NopEmitter) EmitInt32(int32)                {}
func (NopEmitter) EmitInt64(int64)                {}
func (NopEmitter) EmitBool(bool)                  {}
func (NopEmitter) EmitDouble(float64)             {}
func (NopEmitter) EmitNull()                      {}
func (NopEmitter) EmitFieldName(chunk []byte)     {}
func (NopEmitter) EmitUtf8(chunk []byte)          {}
func (NopEmitter) EmitJs(chunk []byte)            {}
func (NopEmitter) EmitBindataSubtype(BindataSubtype) {}
func (NopEmitter) EmitBindata(chunk []byte)       {}
func (NopEmitter) EmitUtcDatetime(int64)          {}
func (NopEmitter) EmitTimestamp(int64)            {}
func (NopEmitter) EmitObjectId([ObjectIDLen]byte) {}
func (NopEmitter) EmitError(error)                {}

// DecodeError reports a malformed or inconsistent byte stream
// encountered by a Reader. Once returned, the Reader that produced it
// is stuck in the error state: further Consume calls return (0, nil).
type DecodeError struct {
	Msg string
}

func (e *DecodeError) Error() string { return e.Msg }
