// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package wire builds and parses MongoDB wire-protocol packets: legacy
// OP_QUERY requests (including the insert/update/delete write commands,
// which are sent as OP_QUERY against db.$cmd), OP_GET_MORE and
// OP_KILL_CURSORS requests, their OP_REPLY responses, and the
// command-response envelope (ok/n/nModified/writeErrors) used by the
// write commands this package builds.
//
// Like bson, this package performs no I/O: request builders append to
// a bson.Writer and response readers are driven by bytes the caller
// already has in hand.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/till-varoquaux/okmongo/bson"
)

// Opcode identifies the kind of a wire-protocol message.
type Opcode int32

// Recognized opcodes.
const (
	OpReply       Opcode = 1
	OpMsg         Opcode = 1000
	OpUpdate      Opcode = 2001
	OpInsert      Opcode = 2002
	OpQuery       Opcode = 2004
	OpGetMore     Opcode = 2005
	OpDelete      Opcode = 2006
	OpKillCursors Opcode = 2007
)

// String implements fmt.Stringer.
func (op Opcode) String() string {
	switch op {
	case OpReply:
		return "OP_REPLY"
	case OpMsg:
		return "OP_MSG"
	case OpUpdate:
		return "OP_UPDATE"
	case OpInsert:
		return "OP_INSERT"
	case OpQuery:
		return "OP_QUERY"
	case OpGetMore:
		return "OP_GET_MORE"
	case OpDelete:
		return "OP_DELETE"
	case OpKillCursors:
		return "OP_KILL_CURSORS"
	default:
		return fmt.Sprintf("Opcode(%d)", int32(op))
	}
}

// MsgHeaderLen is the on-wire size, in bytes, of MsgHeader.
const MsgHeaderLen = 16

// MsgHeader is the 16-byte header present at the start of every
// message to and from a mongod/mongos.
type MsgHeader struct {
	MessageLength int32 // total message size, including this header
	RequestID     int32 // identifier for this message
	ResponseTo    int32 // requestID this is a reply to, or 0
	OpCode        Opcode
}

// String implements fmt.Stringer.
func (h MsgHeader) String() string {
	return fmt.Sprintf("MsgHeader{MessageLength: %d, RequestID: %d, ResponseTo: %d, OpCode: %v}",
		h.MessageLength, h.RequestID, h.ResponseTo, h.OpCode)
}

func (h MsgHeader) appendTo(w *bson.Writer) {
	w.AppendRawInt32(h.MessageLength)
	w.AppendRawInt32(h.RequestID)
	w.AppendRawInt32(h.ResponseTo)
	w.AppendRawInt32(int32(h.OpCode))
}

// ResponseHeaderLen is the on-wire size, in bytes, of ResponseHeader.
const ResponseHeaderLen = MsgHeaderLen + 4 + 8 + 4 + 4

// ResponseHeader is the common header of every response from the
// database: a MsgHeader plus the OP_REPLY-specific fields. The
// command-response protocol this package targets only ever replies
// with OpReply, so every response reader expects this exact layout.
type ResponseHeader struct {
	MsgHeader
	ResponseFlags  ResponseFlags
	CursorID       int64
	StartingFrom   int32
	NumberReturned int32
}

// String implements fmt.Stringer.
func (h ResponseHeader) String() string {
	return fmt.Sprintf(
		"ResponseHeader{%v, ResponseFlags: %v, CursorID: %d, StartingFrom: %d, NumberReturned: %d}",
		h.MsgHeader, h.ResponseFlags, h.CursorID, h.StartingFrom, h.NumberReturned)
}

// UnmarshalResponseHeader decodes a ResponseHeader from the first
// ResponseHeaderLen bytes of b. b must be at least that long.
func UnmarshalResponseHeader(b []byte) ResponseHeader {
	_ = b[ResponseHeaderLen-1]
	return ResponseHeader{
		MsgHeader: MsgHeader{
			MessageLength: int32(binary.LittleEndian.Uint32(b[0:4])),
			RequestID:     int32(binary.LittleEndian.Uint32(b[4:8])),
			ResponseTo:    int32(binary.LittleEndian.Uint32(b[8:12])),
			OpCode:        Opcode(binary.LittleEndian.Uint32(b[12:16])),
		},
		ResponseFlags:  ResponseFlags(binary.LittleEndian.Uint32(b[16:20])),
		CursorID:       int64(binary.LittleEndian.Uint64(b[20:28])),
		StartingFrom:   int32(binary.LittleEndian.Uint32(b[28:32])),
		NumberReturned: int32(binary.LittleEndian.Uint32(b[32:36])),
	}
}

// ResponseFlags is a bitset carried by every OP_REPLY.
type ResponseFlags int32

// Recognized response flags. Bits 4-31 are reserved and should be
// ignored.
const (
	// CursorNotFound is set when getMore is called but the cursor id
	// is not valid at the server; returned with zero results.
	CursorNotFound ResponseFlags = 1
	// QueryFailure is set when the query failed. The result consists
	// of exactly one document containing an "$err" field.
	QueryFailure ResponseFlags = 2
	// ShardConfigStale is only ever set by mongos; drivers should
	// ignore it.
	ShardConfigStale ResponseFlags = 4
	// AwaitCapable is set when the server supports the AwaitData
	// query option.
	AwaitCapable ResponseFlags = 8
)

// String implements fmt.Stringer.
func (f ResponseFlags) String() string {
	if f == 0 {
		return "0"
	}
	s := ""
	add := func(bit ResponseFlags, name string) {
		if f&bit != 0 {
			if s != "" {
				s += "|"
			}
			s += name
		}
	}
	add(CursorNotFound, "CursorNotFound")
	add(QueryFailure, "QueryFailure")
	add(ShardConfigStale, "ShardConfigStale")
	add(AwaitCapable, "AwaitCapable")
	return s
}
