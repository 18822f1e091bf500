// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wire

import (
	"encoding/binary"

	"github.com/till-varoquaux/okmongo/bson"
)

// ValueEmitter receives each document of an OP_REPLY as a single
// zero-copy bson.Value, rather than a field-by-field event stream.
type ValueEmitter interface {
	EmitBsonValue(v bson.Value)
}

// ValueResponseReader decodes an OP_REPLY the same way ResponseReader
// does, but buffers each document whole and hands it to a ValueEmitter
// as a bson.Value instead of streaming its fields. This costs one
// allocation (and one copy) per document — the price of getting back
// a value that supports random-access GetField/ValueIterator lookups
// — which is why it's a distinct reader rather than ResponseReader's
// only mode.
type ValueResponseReader struct {
	bson.NopEmitter
	r         *bson.Reader
	sink      ValueEmitter
	hdrBuf    [ResponseHeaderLen]byte
	lenBuf    [4]byte
	header    ResponseHeader
	docCount  int32
	buf       []byte
	remaining int32
}

// NewValueResponseReader returns a ValueResponseReader that hands
// each decoded document to sink.
func NewValueResponseReader(sink ValueEmitter) *ValueResponseReader {
	vr := &ValueResponseReader{sink: sink}
	vr.r = bson.NewReaderState(vr, vr, bson.StateHdr)
	return vr
}

// Header returns the response header once it has been fully decoded.
func (vr *ValueResponseReader) Header() ResponseHeader { return vr.header }

// Done reports whether every document the header promised has been
// consumed (or a decode error was hit).
func (vr *ValueResponseReader) Done() bool { return vr.r.Done() }

// Reset returns the reader to its initial state so it can decode
// another OP_REPLY message.
func (vr *ValueResponseReader) Reset() {
	vr.r.Reset()
	vr.header = ResponseHeader{}
	vr.docCount = 0
	vr.buf = nil
	vr.remaining = 0
}

// Consume feeds b to the reader, following the same suspend/resume
// contract as bson.Reader.Consume.
func (vr *ValueResponseReader) Consume(b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := vr.r.Consume(b[total:])
		if err != nil {
			return -1, err
		}
		total += n
		if vr.r.State() != bson.StateDone {
			return total, nil
		}
		if !vr.advance() {
			return total, nil
		}
	}
	return total, nil
}

func (vr *ValueResponseReader) advance() bool {
	vr.docCount++
	if vr.docCount >= vr.header.NumberReturned {
		return false
	}
	vr.r.SetState(bson.StateUsr1)
	return true
}

// ConsumeHdr implements bson.HeaderConsumer.
func (vr *ValueResponseReader) ConsumeHdr(r *bson.Reader, b []byte) (int, error) {
	pos, done := r.ReadBytes(b, 0, vr.hdrBuf[:], ResponseHeaderLen, bson.StateHdr)
	if !done {
		return pos, nil
	}
	vr.header = UnmarshalResponseHeader(vr.hdrBuf[:])
	if vr.header.NumberReturned <= 0 {
		r.SetState(bson.StateDone)
		return pos, nil
	}
	r.SetState(bson.StateUsr1)
	return r.ConsumeFrom(b, pos)
}

// ConsumeUsr1 implements bson.HeaderConsumer: reads a document's
// leading int32 length, then starts buffering it.
func (vr *ValueResponseReader) ConsumeUsr1(r *bson.Reader, b []byte) (int, error) {
	pos, done := r.ReadBytes(b, 0, vr.lenBuf[:], 4, bson.StateUsr1)
	if !done {
		return pos, nil
	}
	ln := int32(binary.LittleEndian.Uint32(vr.lenBuf[:]))
	if ln < 5 {
		return 0, &bson.DecodeError{Msg: "wire: document length too small"}
	}
	vr.buf = make([]byte, 0, ln)
	vr.buf = append(vr.buf, vr.lenBuf[:]...)
	vr.remaining = ln - 4
	r.SetState(bson.StateUsr2)
	return r.ConsumeFrom(b, pos)
}

// ConsumeUsr2 implements bson.HeaderConsumer: appends the remainder of
// the document's bytes, and once complete hands it to the sink.
func (vr *ValueResponseReader) ConsumeUsr2(r *bson.Reader, b []byte) (int, error) {
	avail := int32(len(b))
	if avail < vr.remaining {
		vr.buf = append(vr.buf, b...)
		vr.remaining -= avail
		r.SetState(bson.StateUsr2)
		return len(b), nil
	}
	vr.buf = append(vr.buf, b[:vr.remaining]...)
	pos := int(vr.remaining)
	vr.remaining = 0

	v := bson.NewValue(vr.buf, bson.TagDocument)
	if v.Empty() {
		return 0, &bson.DecodeError{Msg: "wire: malformed document in reply"}
	}
	vr.sink.EmitBsonValue(v)
	r.SetState(bson.StateDone)
	return pos, nil
}

// ConsumeUsr3 implements bson.HeaderConsumer. ValueResponseReader
// never enters StateUsr3.
func (vr *ValueResponseReader) ConsumeUsr3(r *bson.Reader, b []byte) (int, error) {
	return 0, &bson.DecodeError{Msg: "wire: ValueResponseReader does not use StateUsr3"}
}

// ConsumeUsr4 implements bson.HeaderConsumer. ValueResponseReader
// never enters StateUsr4.
func (vr *ValueResponseReader) ConsumeUsr4(r *bson.Reader, b []byte) (int, error) {
	return 0, &bson.DecodeError{Msg: "wire: ValueResponseReader does not use StateUsr4"}
}
