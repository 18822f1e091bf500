// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package dump materializes a bson.Reader's decode stream into a
// generic Go value tree (map[string]any / []any / scalars), so tests
// and the bsondump example tool can compare or print a whole document
// without hand-rolling their own Emitter every time.
package dump

import (
	"github.com/davecgh/go-spew/spew"

	"github.com/till-varoquaux/okmongo/bson"
)

// Value is one decoded BSON value materialized into plain Go types:
// nil, bool, int32, int64, float64, string, []byte (BinData),
// [bson.ObjectIDLen]byte, []Value (array or Js-as-string is just
// string), or map[string]Value (document).
type Value any

// Builder is a bson.Emitter that materializes one document into a
// Value tree. Construct one per document: it is not reusable across
// Consume calls for more than a single top-level value.
type Builder struct {
	bson.NopEmitter

	root   Value
	stack  []frame
	key    []byte
	strBuf []byte
	subty  bson.BindataSubtype
	err    error
}

type frame struct {
	isArray bool
	doc     map[string]Value
	arr     []Value
	key     string
}

// NewBuilder returns a ready-to-use Builder.
func NewBuilder() *Builder { return &Builder{} }

// Result returns the materialized tree once decoding finishes. its
// behavior is undefined before the associated Reader reaches
// StateDone.
func (b *Builder) Result() Value { return b.root }

// Err returns the decode error, if EmitError was called.
func (b *Builder) Err() error { return b.err }

func (b *Builder) push(isArray bool) {
	f := frame{isArray: isArray, key: string(b.key)}
	b.key = b.key[:0]
	if isArray {
		f.arr = []Value{}
	} else {
		f.doc = map[string]Value{}
	}
	b.stack = append(b.stack, f)
}

func (b *Builder) set(v Value) {
	if len(b.stack) == 0 {
		b.root = v
		b.key = b.key[:0]
		return
	}
	top := &b.stack[len(b.stack)-1]
	if top.isArray {
		top.arr = append(top.arr, v)
	} else {
		top.doc[string(b.key)] = v
	}
	b.key = b.key[:0]
}

// EmitOpenDoc implements bson.Emitter.
func (b *Builder) EmitOpenDoc() { b.push(false) }

// EmitOpenArray implements bson.Emitter.
func (b *Builder) EmitOpenArray() { b.push(true) }

// EmitClose implements bson.Emitter.
func (b *Builder) EmitClose() {
	top := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	b.key = append(b.key[:0], top.key...)
	if top.isArray {
		b.set(Value(top.arr))
	} else {
		b.set(Value(top.doc))
	}
}

// EmitFieldName implements bson.Emitter.
func (b *Builder) EmitFieldName(chunk []byte) {
	if chunk == nil {
		return
	}
	b.key = append(b.key, chunk...)
}

// EmitInt32 implements bson.Emitter.
func (b *Builder) EmitInt32(v int32) { b.set(v) }

// EmitInt64 implements bson.Emitter.
func (b *Builder) EmitInt64(v int64) { b.set(v) }

// EmitBool implements bson.Emitter.
func (b *Builder) EmitBool(v bool) { b.set(v) }

// EmitDouble implements bson.Emitter.
func (b *Builder) EmitDouble(v float64) { b.set(v) }

// EmitNull implements bson.Emitter.
func (b *Builder) EmitNull() { b.set(nil) }

// EmitUtcDatetime implements bson.Emitter.
func (b *Builder) EmitUtcDatetime(v int64) { b.set(v) }

// EmitTimestamp implements bson.Emitter.
func (b *Builder) EmitTimestamp(v int64) { b.set(v) }

// EmitObjectId implements bson.Emitter.
func (b *Builder) EmitObjectId(oid [bson.ObjectIDLen]byte) { b.set(oid) }

// EmitUtf8 implements bson.Emitter.
func (b *Builder) EmitUtf8(chunk []byte) {
	if chunk == nil {
		b.set(string(b.strBuf))
		b.strBuf = b.strBuf[:0]
		return
	}
	b.strBuf = append(b.strBuf, chunk...)
}

// EmitJs implements bson.Emitter.
func (b *Builder) EmitJs(chunk []byte) { b.EmitUtf8(chunk) }

// EmitBindataSubtype implements bson.Emitter.
func (b *Builder) EmitBindataSubtype(st bson.BindataSubtype) { b.subty = st }

// EmitBindata implements bson.Emitter.
func (b *Builder) EmitBindata(chunk []byte) {
	if chunk == nil {
		buf := make([]byte, len(b.strBuf))
		copy(buf, b.strBuf)
		b.strBuf = b.strBuf[:0]
		b.set(buf)
		return
	}
	b.strBuf = append(b.strBuf, chunk...)
}

// EmitError implements bson.Emitter.
func (b *Builder) EmitError(err error) { b.err = err }

// Sdump renders v with go-spew, for use in test failure messages and
// other debug output.
func Sdump(v Value) string {
	return spew.Sdump(v)
}
