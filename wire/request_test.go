// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wire_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/till-varoquaux/okmongo/bson"
	"github.com/till-varoquaux/okmongo/internal/dump"
	"github.com/till-varoquaux/okmongo/wire"
)

func decodeDoc(t *testing.T, data []byte) map[string]dump.Value {
	t.Helper()
	b := dump.NewBuilder()
	r := bson.NewReader(b)
	n, err := r.Consume(data)
	require.NoError(t, err)
	require.True(t, r.Done())
	require.NoError(t, b.Err())
	require.Equal(t, len(data), n)
	return b.Result().(map[string]dump.Value)
}

// commandHeaderLen returns the size of the OP_QUERY-based command
// header (MsgHeader + flags + "db.$cmd\0" + numberToSkip/ToReturn) that
// appendCommandHeader writes ahead of the actual command document.
func commandHeaderLen(db string) int {
	return wire.MsgHeaderLen + 4 + len(db) + len(".$cmd") + 1 + 4 + 4
}

func checkMsgHeader(t *testing.T, buf []byte, requestID int32, op wire.Opcode) {
	t.Helper()
	msgLen := int32(binary.LittleEndian.Uint32(buf[0:4]))
	require.Equal(t, int32(len(buf)), msgLen)
	require.Equal(t, requestID, int32(binary.LittleEndian.Uint32(buf[4:8])))
	require.Equal(t, int32(0), int32(binary.LittleEndian.Uint32(buf[8:12])))
	require.Equal(t, op, wire.Opcode(binary.LittleEndian.Uint32(buf[12:16])))
}

func TestBuildInsert(t *testing.T) {
	w := bson.NewWriter()
	err := wire.BuildInsert(w, 5, "db", "coll",
		func(w *bson.Writer) error {
			w.ElementInt32(bson.Field("x"), 1)
			return nil
		},
		func(w *bson.Writer) error {
			w.ElementInt32(bson.Field("x"), 2)
			return nil
		},
	)
	require.NoError(t, err)

	buf := append([]byte(nil), w.Bytes()...)
	checkMsgHeader(t, buf, 5, wire.OpQuery)

	hdrLen := commandHeaderLen("db")
	cmd := decodeDoc(t, buf[hdrLen:])
	require.Equal(t, "coll", cmd["insert"])
	docs := cmd["documents"].([]dump.Value)
	require.Len(t, docs, 2)
	require.Equal(t, int32(1), docs[0].(map[string]dump.Value)["x"])
	require.Equal(t, int32(2), docs[1].(map[string]dump.Value)["x"])

	wc := cmd["WriteConcern"].(map[string]dump.Value)
	require.Equal(t, int32(1), wc["w"])
	require.Equal(t, int32(100), wc["wtimeout"])
}

func TestBuildInsertRangeSplitsAtMaxBatchSize(t *testing.T) {
	docs := make([]wire.Doc, wire.MaxWriteBatchSize+10)
	for i := range docs {
		i := i
		docs[i] = func(w *bson.Writer) error {
			w.ElementInt32(bson.Field("i"), int32(i))
			return nil
		}
	}

	w := bson.NewWriter()
	remaining, err := wire.BuildInsertRange(w, 1, "db", "coll", docs)
	require.NoError(t, err)
	require.Len(t, remaining, 10)

	buf := append([]byte(nil), w.Bytes()...)
	cmd := decodeDoc(t, buf[commandHeaderLen("db"):])
	inserted := cmd["documents"].([]dump.Value)
	require.Len(t, inserted, wire.MaxWriteBatchSize)
}

func TestBuildInsertRangeFitsUnderLimit(t *testing.T) {
	docs := []wire.Doc{
		func(w *bson.Writer) error { w.ElementInt32(bson.Field("i"), 0); return nil },
	}
	w := bson.NewWriter()
	remaining, err := wire.BuildInsertRange(w, 1, "db", "coll", docs)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestBuildQuery(t *testing.T) {
	w := bson.NewWriter()
	err := wire.BuildQuery(w, 9, "db", "coll", func(w *bson.Writer) error {
		w.ElementInt32(bson.Field("x"), 1)
		return nil
	}, 10)
	require.NoError(t, err)

	buf := append([]byte(nil), w.Bytes()...)
	checkMsgHeader(t, buf, 9, wire.OpQuery)

	fullName := "db.coll"
	off := wire.MsgHeaderLen + 4
	require.Equal(t, fullName, string(buf[off:off+len(fullName)]))
	off += len(fullName) + 1

	skip := int32(binary.LittleEndian.Uint32(buf[off : off+4]))
	toReturn := int32(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
	require.Equal(t, int32(0), skip)
	require.Equal(t, int32(-10), toReturn, "positive limit must be negated on the wire")
	off += 8

	query := decodeDoc(t, buf[off:])
	require.Equal(t, int32(1), query["x"])
}

func TestBuildQueryWithProjection(t *testing.T) {
	w := bson.NewWriter()
	err := wire.BuildQueryWithProjection(w, 1, "db", "coll",
		func(w *bson.Writer) error { w.ElementInt32(bson.Field("x"), 1); return nil },
		func(w *bson.Writer) error { w.ElementInt32(bson.Field("_id"), 0); return nil },
		0)
	require.NoError(t, err)

	buf := append([]byte(nil), w.Bytes()...)
	fullName := "db.coll"
	off := wire.MsgHeaderLen + 4 + len(fullName) + 1 + 8

	b := dump.NewBuilder()
	r := bson.NewReader(b)
	n, err := r.Consume(buf[off:])
	require.NoError(t, err)
	require.True(t, r.Done())
	query := b.Result().(map[string]dump.Value)
	require.Equal(t, int32(1), query["x"])
	off += n

	proj := decodeDoc(t, buf[off:])
	require.Equal(t, int32(0), proj["_id"])
}

func TestBuildUpdate(t *testing.T) {
	w := bson.NewWriter()
	err := wire.BuildUpdate(w, 1, "db", "coll",
		func(w *bson.Writer) error { w.ElementInt32(bson.Field("_id"), 1); return nil },
		func(w *bson.Writer) error {
			w.PushDocument(bson.Field("$set"))
			w.ElementInt32(bson.Field("x"), 2)
			w.Pop()
			return nil
		}, true)
	require.NoError(t, err)

	buf := append([]byte(nil), w.Bytes()...)
	cmd := decodeDoc(t, buf[commandHeaderLen("db"):])
	require.Equal(t, "coll", cmd["update"])
	updates := cmd["updates"].([]dump.Value)
	require.Len(t, updates, 1)
	u := updates[0].(map[string]dump.Value)
	require.Equal(t, int32(1), u["q"].(map[string]dump.Value)["_id"])
	require.Equal(t, int32(2), u["u"].(map[string]dump.Value)["$set"].(map[string]dump.Value)["x"])
	require.Equal(t, true, u["upsert"])
}

func TestBuildDelete(t *testing.T) {
	w := bson.NewWriter()
	err := wire.BuildDelete(w, 1, "db", "coll", func(w *bson.Writer) error {
		w.ElementInt32(bson.Field("_id"), 1)
		return nil
	})
	require.NoError(t, err)

	buf := append([]byte(nil), w.Bytes()...)
	cmd := decodeDoc(t, buf[commandHeaderLen("db"):])
	require.Equal(t, "coll", cmd["delete"])
	deletes := cmd["deletes"].([]dump.Value)
	require.Len(t, deletes, 1)
	d := deletes[0].(map[string]dump.Value)
	require.Equal(t, int32(1), d["q"].(map[string]dump.Value)["_id"])
	require.Equal(t, int32(0), d["limit"])
}

func TestBuildGetMore(t *testing.T) {
	w := bson.NewWriter()
	wire.BuildGetMore(w, 3, "db", "coll", 123456)

	buf := append([]byte(nil), w.Bytes()...)
	checkMsgHeader(t, buf, 3, wire.OpGetMore)

	off := wire.MsgHeaderLen + 4
	fullName := "db.coll"
	require.Equal(t, fullName, string(buf[off:off+len(fullName)]))
	off += len(fullName) + 1

	numberToReturn := int32(binary.LittleEndian.Uint32(buf[off : off+4]))
	require.Equal(t, int32(0), numberToReturn)
	off += 4
	cursorID := int64(binary.LittleEndian.Uint64(buf[off : off+8]))
	require.Equal(t, int64(123456), cursorID)
	off += 8
	require.Equal(t, off, len(buf))
}

func TestBuildIsMaster(t *testing.T) {
	w := bson.NewWriter()
	wire.BuildIsMaster(w, 1)

	buf := append([]byte(nil), w.Bytes()...)
	cmd := decodeDoc(t, buf[commandHeaderLen("admin"):])
	require.Equal(t, int32(1), cmd["ismaster"])
	_, hasWC := cmd["WriteConcern"]
	require.False(t, hasWC, "isMaster does not carry a write concern")
}

func TestBuildKillCursors(t *testing.T) {
	w := bson.NewWriter()
	wire.BuildKillCursors(w, 1, 42)

	buf := append([]byte(nil), w.Bytes()...)
	checkMsgHeader(t, buf, 1, wire.OpKillCursors)
	off := wire.MsgHeaderLen + 4
	numCursors := int32(binary.LittleEndian.Uint32(buf[off : off+4]))
	require.Equal(t, int32(1), numCursors)
	off += 4
	cursorID := int64(binary.LittleEndian.Uint64(buf[off : off+8]))
	require.Equal(t, int64(42), cursorID)
	off += 8
	require.Equal(t, off, len(buf))
}
