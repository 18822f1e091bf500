// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"encoding/binary"
	"math"
)

// State is a Reader's position in its decoding state machine.
type State int8

// Recognized states. StateHdr and StateUsr1..StateUsr4 are never
// entered by the bson package itself; they exist so a HeaderConsumer
// (e.g. the wire package's packet reader) can extend the state machine
// with its own framing, sharing the same suspend/resume discipline.
const (
	StateFieldTyp State = iota
	StateFieldName
	StateReadInt32
	StateReadInt64
	StateReadDouble
	StateReadBool
	StateReadString
	StateReadStringTerm
	StateReadBinSubtype
	StateReadObjectId
	StateDone
	StateError
	StateHdr
	StateUsr1
	StateUsr2
	StateUsr3
	StateUsr4
)

func (s State) String() string {
	switch s {
	case StateFieldTyp:
		return "FieldTyp"
	case StateFieldName:
		return "FieldName"
	case StateReadInt32:
		return "ReadInt32"
	case StateReadInt64:
		return "ReadInt64"
	case StateReadDouble:
		return "ReadDouble"
	case StateReadBool:
		return "ReadBool"
	case StateReadString:
		return "ReadString"
	case StateReadStringTerm:
		return "ReadStringTerm"
	case StateReadBinSubtype:
		return "ReadBinSubtype"
	case StateReadObjectId:
		return "ReadObjectId"
	case StateDone:
		return "Done"
	case StateError:
		return "Error"
	case StateHdr:
		return "Hdr"
	case StateUsr1:
		return "Usr1"
	case StateUsr2:
		return "Usr2"
	case StateUsr3:
		return "Usr3"
	case StateUsr4:
		return "Usr4"
	default:
		return "State(?)"
	}
}

// HeaderConsumer lets a Reader be extended with custom framing states
// (StateHdr, StateUsr1..StateUsr4). Each method receives the Reader so
// it can switch r's state (typically back into StateReadInt32 or
// StateFieldTyp to resume decoding a BSON document) and must return the
// number of leading bytes of b it consumed, following the same
// suspend/resume contract as Consume: consuming all of b and wanting
// more means returning (len(b), nil) having first set r's state to the
// state that should handle the next call.
type HeaderConsumer interface {
	ConsumeHdr(r *Reader, b []byte) (int, error)
	ConsumeUsr1(r *Reader, b []byte) (int, error)
	ConsumeUsr2(r *Reader, b []byte) (int, error)
	ConsumeUsr3(r *Reader, b []byte) (int, error)
	ConsumeUsr4(r *Reader, b []byte) (int, error)
}

// Reader is a reentrant, allocation-free BSON decoder. It consumes
// arbitrary byte chunks via Consume and reports the decoded structure
// through an Emitter. A Reader holds no reference to the bytes it is
// given once Consume returns: every chunk can be discarded or reused
// by the caller immediately afterwards.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	// Emitter receives decode events. It must be set before the first
	// call to Consume.
	Emitter Emitter
	// Hdr, if non-nil, handles StateHdr/StateUsr1..StateUsr4. Only
	// needed by readers that start in, or transition into, one of
	// those states.
	Hdr HeaderConsumer

	initial State
	state   State
	typ     Tag
	depth   int8
	partial int32
	bytesSeen int32
	scratch [ObjectIDLen]byte
}

// NewReader returns a Reader that starts by reading a top-level
// document's length prefix.
func NewReader(e Emitter) *Reader {
	return NewReaderState(e, nil, StateReadInt32)
}

// NewReaderState returns a Reader that starts in the given state, with
// hdr wired in to handle StateHdr/StateUsr1..StateUsr4 if the state
// machine ever enters one of them. Used by packet readers that need to
// consume framing bytes before (or interleaved with) BSON documents.
func NewReaderState(e Emitter, hdr HeaderConsumer, initial State) *Reader {
	r := &Reader{Emitter: e, Hdr: hdr, initial: initial}
	r.Reset()
	return r
}

// Reset returns the reader to its initial state so it can decode
// another value.
func (r *Reader) Reset() {
	r.state = r.initial
	r.typ = TagDocument
	r.depth = 0
	r.partial = 0
	r.bytesSeen = 0
}

// Done reports whether the reader has finished (successfully or with
// an error) and will not consume any more bytes.
func (r *Reader) Done() bool {
	return r.state == StateDone || r.state == StateError
}

// State returns the reader's current state.
func (r *Reader) State() State { return r.state }

// Depth returns the reader's current document/array nesting depth.
func (r *Reader) Depth() int8 { return r.depth }

// BytesSeen returns the total number of bytes consumed across the
// reader's lifetime (since the last Reset).
func (r *Reader) BytesSeen() int32 { return r.bytesSeen }

// SetState lets a HeaderConsumer transition the reader into a new
// state (typically StateReadInt32 or StateFieldTyp, to resume BSON
// document decoding after consuming framing bytes).
func (r *Reader) SetState(s State) { r.state = s }

// Consume feeds b to the reader. It returns the number of leading
// bytes of b consumed. A return value less than len(b) only happens
// when the reader reaches StateDone partway through b (the remaining
// bytes belong to whatever comes next, e.g. another document). A
// return value of -1 means the reader hit malformed input: the error
// is also returned, and was already delivered to Emitter.EmitError. Any
// call after an error, or after StateDone with no bytes remaining
// un-consumed, returns (0, nil) without touching b.
func (r *Reader) Consume(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if r.state == StateDone || r.state == StateError {
		return 0, nil
	}

	pos, err := r.consumeAt(b, 0)
	if err != nil {
		return -1, err
	}
	r.bytesSeen += int32(pos)
	return pos, nil
}

// StartDocument prepares the reader to decode a new top-level BSON
// document beginning at its length prefix, without disturbing
// BytesSeen or Depth. A HeaderConsumer that frames a sequence of
// back-to-back documents (e.g. the documents in a wire-protocol
// reply) calls this between documents, once the previous one reaches
// StateDone.
func (r *Reader) StartDocument() {
	r.typ = TagDocument
	r.state = StateReadInt32
}

// ConsumeFrom continues decoding b starting at byte offset pos, using
// whatever state the reader is currently in, and returns the total
// number of bytes of b consumed (including pos itself) following the
// same convention as Consume. A HeaderConsumer uses this to hand
// leftover bytes straight to the BSON state machine after setting up
// a new state with StartDocument or SetState, without waiting for
// another call to Consume.
func (r *Reader) ConsumeFrom(b []byte, pos int) (int, error) {
	return r.consumeAt(b, pos)
}

func (r *Reader) consumeAt(b []byte, pos int) (int, error) {
	if r.state >= StateHdr && r.Hdr == nil {
		return r.fail("no HeaderConsumer configured for this state")
	}
	switch r.state {
	case StateFieldTyp:
		return r.consumeFieldTyp(b, pos)
	case StateFieldName:
		return r.consumeFieldName(b, pos)
	case StateReadInt32:
		return r.consumeValueInt32(b, pos)
	case StateReadInt64:
		return r.consumeValueInt64(b, pos)
	case StateReadBool:
		return r.consumeValueBool(b, pos)
	case StateReadDouble:
		return r.consumeValueDouble(b, pos)
	case StateReadString:
		return r.consumeValueString(b, pos)
	case StateReadStringTerm:
		return r.consumeValueStringTerm(b, pos)
	case StateReadBinSubtype:
		return r.consumeValueBinSubtype(b, pos)
	case StateReadObjectId:
		return r.consumeValueObjectId(b, pos)
	case StateHdr:
		return r.dispatchHdr(r.Hdr.ConsumeHdr, b, pos)
	case StateUsr1:
		return r.dispatchHdr(r.Hdr.ConsumeUsr1, b, pos)
	case StateUsr2:
		return r.dispatchHdr(r.Hdr.ConsumeUsr2, b, pos)
	case StateUsr3:
		return r.dispatchHdr(r.Hdr.ConsumeUsr3, b, pos)
	case StateUsr4:
		return r.dispatchHdr(r.Hdr.ConsumeUsr4, b, pos)
	default:
		return pos, nil
	}
}

func (r *Reader) dispatchHdr(fn func(*Reader, []byte) (int, error), b []byte, pos int) (int, error) {
	n, err := fn(r, b[pos:])
	if err != nil {
		// A nested ConsumeFrom that failed has already entered
		// StateError and delivered the error to the Emitter.
		if r.state != StateError {
			r.state = StateError
			r.Emitter.EmitError(err)
		}
		return -1, err
	}
	return pos + n, nil
}

func (r *Reader) fail(msg string) (int, error) {
	r.state = StateError
	err := &DecodeError{Msg: msg}
	r.Emitter.EmitError(err)
	return -1, err
}

// ReadBytes reads exactly sz bytes into dst, starting at b[pos],
// across as many calls as it takes: if b runs out first, it records
// how much of dst it has filled, switches the reader to resume, and
// returns (len(b), false) so the caller suspends; once dst is full it
// returns (newPos, true). It is the same primitive the reader uses
// internally to read fixed-size scalars, exported so a HeaderConsumer
// can read its own fixed-size framing fields with the same
// suspend/resume discipline, sharing the reader's partial-byte
// counter.
func (r *Reader) ReadBytes(b []byte, pos int, dst []byte, sz int32, resume State) (int, bool) {
	return r.readBytes(b, pos, dst, sz, resume)
}

func (r *Reader) readBytes(b []byte, pos int, dst []byte, sz int32, resume State) (int, bool) {
	i := r.partial
	n := int32(len(b))
	p := int32(pos)
	for i < sz && p < n {
		dst[i] = b[p]
		p++
		i++
	}
	if i < sz {
		r.partial = i
		r.state = resume
		return len(b), false
	}
	r.partial = 0
	return int(p), true
}

func (r *Reader) consumeFieldTyp(b []byte, pos int) (int, error) {
	n := len(b)
	for {
		if pos == n {
			r.state = StateFieldTyp
			return n, nil
		}
		if b[pos] == 0 {
			r.depth--
			r.Emitter.EmitClose()
			if r.depth == 0 {
				r.state = StateDone
				return pos + 1, nil
			}
			pos++
			continue
		}
		r.typ = ToTag(b[pos])
		return r.consumeFieldName(b, pos+1)
	}
}

func (r *Reader) consumeFieldName(b []byte, pos int) (int, error) {
	n := len(b)
	i := pos
	for i < n && b[i] != 0 {
		i++
	}
	if i == n {
		if i > pos {
			r.Emitter.EmitFieldName(b[pos:i])
		}
		r.state = StateFieldName
		return n, nil
	}
	if i > pos {
		r.Emitter.EmitFieldName(b[pos:i])
	}
	r.Emitter.EmitFieldName(nil)
	return r.consumeValue(b, i+1)
}

func (r *Reader) consumeValue(b []byte, pos int) (int, error) {
	switch r.typ {
	case TagInt32, TagArray, TagDocument, TagUtf8, TagJs, TagBinData:
		return r.consumeValueInt32(b, pos)
	case TagInt64, TagUtcDatetime, TagTimestamp:
		return r.consumeValueInt64(b, pos)
	case TagBool:
		return r.consumeValueBool(b, pos)
	case TagDouble:
		return r.consumeValueDouble(b, pos)
	case TagNull:
		r.Emitter.EmitNull()
		return r.consumeFieldTyp(b, pos)
	case TagObjectId:
		return r.consumeValueObjectId(b, pos)
	case TagRegexp, TagScopedJs:
		return r.fail("field type not handled")
	case TagMinKey:
		return r.fail("invalid bson tag")
	default:
		return r.fail("internal error: unexpected tag")
	}
}

func (r *Reader) consumeValueInt32(b []byte, pos int) (int, error) {
	newPos, done := r.readBytes(b, pos, r.scratch[:4], 4, StateReadInt32)
	if !done {
		return newPos, nil
	}
	t := int32(binary.LittleEndian.Uint32(r.scratch[:4]))
	return r.consumeValueInt32Cnt(b, newPos, t)
}

func (r *Reader) consumeValueInt32Cnt(b []byte, pos int, t int32) (int, error) {
	switch r.typ {
	case TagDocument:
		r.depth++
		r.Emitter.EmitOpenDoc()
		return r.consumeFieldTyp(b, pos)
	case TagArray:
		r.depth++
		r.Emitter.EmitOpenArray()
		return r.consumeFieldTyp(b, pos)
	case TagInt32:
		r.Emitter.EmitInt32(t)
		return r.consumeFieldTyp(b, pos)
	case TagUtf8, TagJs:
		if t < 1 {
			return r.fail("negative string length")
		}
		r.partial = t - 1
		return r.consumeValueString(b, pos)
	case TagBinData:
		if t < 0 {
			return r.fail("negative bindata length")
		}
		r.partial = t
		return r.consumeValueBinSubtype(b, pos)
	default:
		return r.fail("internal error: unexpected tag")
	}
}

func (r *Reader) consumeValueInt64(b []byte, pos int) (int, error) {
	newPos, done := r.readBytes(b, pos, r.scratch[:8], 8, StateReadInt64)
	if !done {
		return newPos, nil
	}
	t := int64(binary.LittleEndian.Uint64(r.scratch[:8]))
	return r.consumeValueInt64Cnt(b, newPos, t)
}

func (r *Reader) consumeValueInt64Cnt(b []byte, pos int, t int64) (int, error) {
	switch r.typ {
	case TagInt64:
		r.Emitter.EmitInt64(t)
	case TagUtcDatetime:
		r.Emitter.EmitUtcDatetime(t)
	case TagTimestamp:
		r.Emitter.EmitTimestamp(t)
	}
	return r.consumeFieldTyp(b, pos)
}

func (r *Reader) consumeValueBool(b []byte, pos int) (int, error) {
	if pos == len(b) {
		r.state = StateReadBool
		return len(b), nil
	}
	r.Emitter.EmitBool(int8(b[pos]) > 0)
	return r.consumeFieldTyp(b, pos+1)
}

func (r *Reader) consumeValueDouble(b []byte, pos int) (int, error) {
	newPos, done := r.readBytes(b, pos, r.scratch[:8], 8, StateReadDouble)
	if !done {
		return newPos, nil
	}
	d := math.Float64frombits(binary.LittleEndian.Uint64(r.scratch[:8]))
	r.Emitter.EmitDouble(d)
	return r.consumeFieldTyp(b, newPos)
}

func (r *Reader) consumeValueStringTerm(b []byte, pos int) (int, error) {
	if pos == len(b) {
		r.state = StateReadStringTerm
		return len(b), nil
	}
	r.partial = 0
	if b[pos] != 0 {
		return r.fail("expected NUL terminator")
	}
	return r.consumeFieldTyp(b, pos+1)
}

func (r *Reader) consumeValueBinSubtype(b []byte, pos int) (int, error) {
	if pos == len(b) {
		r.state = StateReadBinSubtype
		return len(b), nil
	}
	r.Emitter.EmitBindataSubtype(BindataSubtype(b[pos]))
	return r.consumeValueString(b, pos+1)
}

func (r *Reader) dispatchStringData(chunk []byte) {
	switch r.typ {
	case TagUtf8:
		r.Emitter.EmitUtf8(chunk)
	case TagJs:
		r.Emitter.EmitJs(chunk)
	case TagBinData:
		r.Emitter.EmitBindata(chunk)
	}
}

func (r *Reader) consumeValueString(b []byte, pos int) (int, error) {
	n := len(b)
	inlen := int32(n - pos)
	if inlen < r.partial {
		r.state = StateReadString
		r.partial -= inlen
		if inlen > 0 {
			r.dispatchStringData(b[pos:n])
		}
		return n, nil
	}
	end := pos + int(r.partial)
	r.dispatchStringData(b[pos:end])
	r.dispatchStringData(nil)
	if r.typ == TagBinData {
		r.partial = 0
		return r.consumeFieldTyp(b, end)
	}
	return r.consumeValueStringTerm(b, end)
}

func (r *Reader) consumeValueObjectId(b []byte, pos int) (int, error) {
	newPos, done := r.readBytes(b, pos, r.scratch[:ObjectIDLen], ObjectIDLen, StateReadObjectId)
	if !done {
		return newPos, nil
	}
	var oid [ObjectIDLen]byte
	copy(oid[:], r.scratch[:ObjectIDLen])
	r.Emitter.EmitObjectId(oid)
	return r.consumeFieldTyp(b, newPos)
}
