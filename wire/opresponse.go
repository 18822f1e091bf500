// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wire

import (
	"github.com/go-stack/stack"

	"github.com/till-varoquaux/okmongo/bson"
	"github.com/till-varoquaux/okmongo/bson/kwmatch"
)

// CmdErrorType classifies a CmdError.
type CmdErrorType uint8

// Recognized CmdError types.
const (
	// WriteError came from the command response's writeErrors array.
	WriteError CmdErrorType = iota
	// WriteConcernError came from the command response's
	// writeConcernErrors array.
	WriteConcernError
	// ParseError means the response itself could not be decoded as
	// BSON; it is not an error the server reported.
	ParseError
)

// CmdError is one entry of a write command's writeErrors or
// writeConcernErrors array, or a synthesized decode failure.
type CmdError struct {
	Code  int32
	Index int32
	Msg   string
	Info  string
	Type  CmdErrorType
	// Stack is the caller stack at the point a ParseError was
	// synthesized. Unset for WriteError/WriteConcernError entries,
	// which came from the server rather than a local decode failure.
	Stack stack.CallStack
}

// OperationResponse is the decoded result of a write command: the
// ok/n/nModified fields every command reply carries, plus any
// per-document errors.
type OperationResponse struct {
	Ok        int32
	N         int32
	NModified int32
	Errors    []CmdError
}

type baseField uint8

const (
	baseFieldUnknown baseField = iota
	baseFieldOk
	baseFieldN
	baseFieldNModified
	baseFieldWriteErrors
	baseFieldWriteConcernErrors
)

var baseMatchTable = []kwmatch.Action[baseField]{
	{Match: "ok", Val: baseFieldOk},
	{Match: "nModified", Val: baseFieldNModified},
	{Match: "n", Val: baseFieldN},
	{Match: "writeErrors", Val: baseFieldWriteErrors},
	{Match: "writeConcernErrors", Val: baseFieldWriteConcernErrors},
}

type errorField uint8

const (
	errorFieldUnknown errorField = iota
	errorFieldIndex
	errorFieldErrMsg
	errorFieldErrInfo
	errorFieldCode
)

var errorMatchTable = []kwmatch.Action[errorField]{
	{Match: "index", Val: errorFieldIndex},
	{Match: "errmsg", Val: errorFieldErrMsg},
	{Match: "errInfo", Val: errorFieldErrInfo},
	{Match: "code", Val: errorFieldCode},
}

// OpResponseParser decodes a write command's reply document into an
// OperationResponse. Feed it to a ResponseReader as its Emitter; it
// only makes sense applied to the single document a command reply
// carries.
type OpResponseParser struct {
	bson.NopEmitter

	baseField    baseField
	errorField   errorField
	inBaseField  bool
	inErrorField bool
	baseMatcher  *kwmatch.Matcher[baseField]
	errorMatcher *kwmatch.Matcher[errorField]

	depth uint8
	res   OperationResponse
}

// NewOpResponseParser returns a ready-to-use OpResponseParser.
func NewOpResponseParser() *OpResponseParser {
	return &OpResponseParser{
		baseMatcher:  kwmatch.New(baseFieldUnknown, baseMatchTable...),
		errorMatcher: kwmatch.New(errorFieldUnknown, errorMatchTable...),
	}
}

// Result returns the parsed response. Valid once the document's
// Reader reaches StateDone.
func (p *OpResponseParser) Result() OperationResponse { return p.res }

// Reset clears the parser so it can decode another command reply.
func (p *OpResponseParser) Reset() {
	p.baseField = baseFieldUnknown
	p.errorField = errorFieldUnknown
	p.inBaseField = false
	p.inErrorField = false
	p.depth = 0
	p.res = OperationResponse{}
}

func (p *OpResponseParser) isError() bool {
	return p.depth == 3 &&
		(p.baseField == baseFieldWriteErrors || p.baseField == baseFieldWriteConcernErrors)
}

// EmitFieldName implements bson.Emitter.
func (p *OpResponseParser) EmitFieldName(chunk []byte) {
	switch {
	case p.depth == 1:
		if !p.inBaseField {
			p.baseMatcher.Reset()
			p.inBaseField = true
		}
		if chunk == nil {
			p.baseMatcher.AddChar(0)
			p.baseField = p.baseMatcher.Result()
			p.inBaseField = false
			return
		}
		for _, c := range chunk {
			p.baseMatcher.AddChar(c)
		}
	case p.isError():
		if !p.inErrorField {
			p.errorMatcher.Reset()
			p.inErrorField = true
		}
		if chunk == nil {
			p.errorMatcher.AddChar(0)
			p.errorField = p.errorMatcher.Result()
			p.inErrorField = false
			return
		}
		for _, c := range chunk {
			p.errorMatcher.AddChar(c)
		}
	}
}

// EmitOpenDoc implements bson.Emitter.
func (p *OpResponseParser) EmitOpenDoc() {
	p.depth++
	if p.isError() {
		p.res.Errors = append(p.res.Errors, CmdError{})
		if p.baseField == baseFieldWriteConcernErrors {
			p.res.Errors[len(p.res.Errors)-1].Type = WriteConcernError
		}
	}
}

// EmitOpenArray implements bson.Emitter.
func (p *OpResponseParser) EmitOpenArray() { p.depth++ }

// EmitClose implements bson.Emitter.
func (p *OpResponseParser) EmitClose() { p.depth-- }

// EmitInt32 implements bson.Emitter.
func (p *OpResponseParser) EmitInt32(i int32) {
	if p.depth == 1 {
		switch p.baseField {
		case baseFieldOk:
			p.res.Ok = i
		case baseFieldN:
			p.res.N = i
		case baseFieldNModified:
			p.res.NModified = i
		}
		return
	}
	if p.isError() {
		last := &p.res.Errors[len(p.res.Errors)-1]
		switch p.errorField {
		case errorFieldCode:
			last.Code = i
		case errorFieldIndex:
			last.Index = i
		}
	}
}

// EmitUtf8 implements bson.Emitter.
func (p *OpResponseParser) EmitUtf8(chunk []byte) {
	if chunk == nil || !p.isError() {
		return
	}
	last := &p.res.Errors[len(p.res.Errors)-1]
	switch p.errorField {
	case errorFieldErrMsg:
		last.Msg += string(chunk)
	case errorFieldErrInfo:
		last.Info += string(chunk)
	}
}

// EmitError implements bson.Emitter: a malformed reply is recorded as
// a ParseError rather than silently discarded, with the caller stack
// captured so a server-reply bug can be traced back to call site.
func (p *OpResponseParser) EmitError(err error) {
	p.res.Errors = append(p.res.Errors, CmdError{
		Msg:   err.Error(),
		Type:  ParseError,
		Stack: stack.Trace().TrimRuntime(),
	})
}
