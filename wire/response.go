// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wire

import (
	"github.com/sirupsen/logrus"

	"github.com/till-varoquaux/okmongo/bson"
)

// ResponseStart is implemented by an Emitter to receive the decoded
// ResponseHeader before any document field events. It is optional:
// ResponseReader only calls it when the Emitter implements it.
type ResponseStart interface {
	EmitResponseStart(h ResponseHeader)
}

// ResponseDocumentBoundary is implemented by an Emitter that wants to
// know where one document in a multi-document reply ends and the next
// begins. It is optional.
type ResponseDocumentBoundary interface {
	EmitResponseDocumentStart(index int32)
	EmitResponseDocumentDone()
}

// ResponseReader decodes an OP_REPLY message: a ResponseHeader
// followed by header.NumberReturned BSON documents, back to back,
// with no framing between them beyond the document lengths
// themselves. Every field of every document is streamed to the
// Emitter passed to NewResponseReader, exactly as bson.Reader would
// for a single document — ResponseReader only adds the header parse
// and the stitching together of consecutive documents.
type ResponseReader struct {
	r        *bson.Reader
	e        bson.Emitter
	hdrBuf   [ResponseHeaderLen]byte
	header   ResponseHeader
	docCount int32
	// log, if non-nil, receives one Debug entry per decoded header and
	// per document boundary. Nil by default: this path stays
	// allocation-free and silent unless a caller opts in with
	// SetLogger.
	log *logrus.Logger
}

// NewResponseReader returns a ResponseReader that streams every
// decoded document's fields to e.
func NewResponseReader(e bson.Emitter) *ResponseReader {
	rr := &ResponseReader{e: e}
	rr.r = bson.NewReaderState(e, rr, bson.StateHdr)
	return rr
}

// SetLogger wires an optional logrus.Logger into the reader: once set,
// every decoded ResponseHeader and document boundary is traced at
// Debug level. Pass nil to go back to silent operation.
func (rr *ResponseReader) SetLogger(log *logrus.Logger) { rr.log = log }

// Header returns the response header once it has been fully decoded
// (zero value beforehand).
func (rr *ResponseReader) Header() ResponseHeader { return rr.header }

// Done reports whether the reader has consumed every document the
// header promised (or hit a decode error).
func (rr *ResponseReader) Done() bool { return rr.r.Done() }

// Reset returns the reader to its initial state so it can decode
// another OP_REPLY message.
func (rr *ResponseReader) Reset() {
	rr.r.Reset()
	rr.header = ResponseHeader{}
	rr.docCount = 0
}

// Consume feeds b to the reader, following the same suspend/resume
// contract as bson.Reader.Consume.
func (rr *ResponseReader) Consume(b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := rr.r.Consume(b[total:])
		if err != nil {
			return -1, err
		}
		total += n
		if rr.r.State() != bson.StateDone {
			return total, nil
		}
		if !rr.advance() {
			return total, nil
		}
	}
	return total, nil
}

// advance moves past a just-finished document (or the header, in the
// zero-documents case) to the next one, returning false once every
// document the header promised has been consumed.
func (rr *ResponseReader) advance() bool {
	if boundary, ok := rr.e.(ResponseDocumentBoundary); ok && rr.docCount < rr.header.NumberReturned {
		boundary.EmitResponseDocumentDone()
	}
	rr.docCount++
	if rr.log != nil {
		rr.log.Debugf("wire: finished document %d of %d", rr.docCount-1, rr.header.NumberReturned)
	}
	if rr.docCount >= rr.header.NumberReturned {
		return false
	}
	if boundary, ok := rr.e.(ResponseDocumentBoundary); ok {
		boundary.EmitResponseDocumentStart(rr.docCount)
	}
	rr.r.StartDocument()
	return true
}

// ConsumeHdr implements bson.HeaderConsumer.
func (rr *ResponseReader) ConsumeHdr(r *bson.Reader, b []byte) (int, error) {
	pos, done := r.ReadBytes(b, 0, rr.hdrBuf[:], ResponseHeaderLen, bson.StateHdr)
	if !done {
		return pos, nil
	}
	rr.header = UnmarshalResponseHeader(rr.hdrBuf[:])
	if rr.log != nil {
		rr.log.Debugf("wire: response header cursorID=%d numberReturned=%d flags=%s",
			rr.header.CursorID, rr.header.NumberReturned, rr.header.ResponseFlags)
	}
	if start, ok := rr.e.(ResponseStart); ok {
		start.EmitResponseStart(rr.header)
	}
	if rr.header.NumberReturned <= 0 {
		r.SetState(bson.StateDone)
		return pos, nil
	}
	if boundary, ok := rr.e.(ResponseDocumentBoundary); ok {
		boundary.EmitResponseDocumentStart(0)
	}
	r.StartDocument()
	return r.ConsumeFrom(b, pos)
}

// ConsumeUsr1 implements bson.HeaderConsumer. ResponseReader never
// enters StateUsr1-4; only ValueResponseReader does.
func (rr *ResponseReader) ConsumeUsr1(r *bson.Reader, b []byte) (int, error) {
	return 0, &bson.DecodeError{Msg: "wire: ResponseReader does not use StateUsr1"}
}

// ConsumeUsr2 implements bson.HeaderConsumer.
func (rr *ResponseReader) ConsumeUsr2(r *bson.Reader, b []byte) (int, error) {
	return 0, &bson.DecodeError{Msg: "wire: ResponseReader does not use StateUsr2"}
}

// ConsumeUsr3 implements bson.HeaderConsumer.
func (rr *ResponseReader) ConsumeUsr3(r *bson.Reader, b []byte) (int, error) {
	return 0, &bson.DecodeError{Msg: "wire: ResponseReader does not use StateUsr3"}
}

// ConsumeUsr4 implements bson.HeaderConsumer.
func (rr *ResponseReader) ConsumeUsr4(r *bson.Reader, b []byte) (int, error) {
	return 0, &bson.DecodeError{Msg: "wire: ResponseReader does not use StateUsr4"}
}
