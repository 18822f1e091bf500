// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wire

import (
	"github.com/pkg/errors"

	"github.com/till-varoquaux/okmongo/bson"
)

// Doc is the extension point callers use to serialize their own
// document types: it writes one document's worth of fields (no
// surrounding Document/Pop) to w. Request builders call it between
// their own Document/Pop pair.
type Doc func(w *bson.Writer) error

// MaxWriteBatchSize is the maximum number of documents accepted by one
// insert/update/delete write command. It mirrors the limit a real
// deployment reports via isMaster's maxWriteBatchSize; BuildInsertRange
// enforces it locally since this package never talks to a server.
const MaxWriteBatchSize = 1000

func appendMsgHeader(w *bson.Writer, requestID int32, op Opcode) {
	MsgHeader{RequestID: requestID, OpCode: op}.appendTo(w)
}

func appendCommandHeader(w *bson.Writer, requestID int32, db string) {
	appendMsgHeader(w, requestID, OpQuery)
	w.AppendRawInt32(0) // flags

	w.AppendRawBytes([]byte(db))
	w.AppendCString(".$cmd")

	w.AppendRawInt32(0)  // numberToSkip
	w.AppendRawInt32(-1) // numberToReturn
}

func appendWriteConcern(w *bson.Writer) {
	w.PushDocument(bson.Field("WriteConcern"))
	w.ElementInt32(bson.Field("wtimeout"), 100)
	w.ElementInt32(bson.Field("w"), 1)
	w.Pop()
}

// BuildInsert appends an insert write command inserting docs into
// db.collection to w.
func BuildInsert(w *bson.Writer, requestID int32, db, collection string, docs ...Doc) error {
	appendCommandHeader(w, requestID, db)

	w.Document()
	w.ElementString(bson.Field("insert"), collection)
	w.PushArray(bson.Field("documents"))
	for i, d := range docs {
		w.PushDocument(bson.Index(i))
		if err := d(w); err != nil {
			return errors.Wrapf(err, "wire: insert into %s.%s: document %d", db, collection, i)
		}
		w.Pop()
	}
	w.Pop()
	appendWriteConcern(w)
	w.Pop()

	w.FlushLen()
	return nil
}

// BuildInsertRange appends an insert write command inserting as many
// leading elements of docs as fit under MaxWriteBatchSize, and returns
// the remaining, un-inserted tail (empty if every document fit). The
// caller is expected to loop, calling BuildInsertRange again with the
// returned tail and a fresh Writer/requestID, until it's empty.
func BuildInsertRange(w *bson.Writer, requestID int32, db, collection string, docs []Doc) (remaining []Doc, err error) {
	appendCommandHeader(w, requestID, db)

	w.Document()
	w.ElementString(bson.Field("insert"), collection)
	w.PushArray(bson.Field("documents"))
	n := len(docs)
	if n > MaxWriteBatchSize {
		n = MaxWriteBatchSize
	}
	for i := 0; i < n; i++ {
		w.PushDocument(bson.Index(i))
		if err := docs[i](w); err != nil {
			return nil, errors.Wrapf(err, "wire: insert into %s.%s: document %d", db, collection, i)
		}
		w.Pop()
	}
	w.Pop()
	appendWriteConcern(w)
	w.Pop()

	w.FlushLen()
	return docs[n:], nil
}

// BuildQuery appends a legacy OP_QUERY message against db.collection to
// w. A positive limit is sent to the server negated, so that it is
// interpreted as a hard limit rather than a batch-size hint.
func BuildQuery(w *bson.Writer, requestID int32, db, collection string, query Doc, limit int32) error {
	return buildQuery(w, requestID, db, collection, query, nil, limit)
}

// BuildQueryWithProjection is BuildQuery plus a field-selector document
// restricting which fields the server returns.
func BuildQueryWithProjection(w *bson.Writer, requestID int32, db, collection string, query, projection Doc, limit int32) error {
	return buildQuery(w, requestID, db, collection, query, projection, limit)
}

func buildQuery(w *bson.Writer, requestID int32, db, collection string, query, projection Doc, limit int32) error {
	appendMsgHeader(w, requestID, OpQuery)
	w.AppendRawInt32(0) // flags

	w.AppendRawBytes([]byte(db))
	w.AppendRawBytes([]byte{'.'})
	w.AppendCString(collection)

	if limit > 0 {
		limit = -limit
	}
	w.AppendRawInt32(0)     // numberToSkip
	w.AppendRawInt32(limit) // numberToReturn

	w.Document()
	if err := query(w); err != nil {
		return errors.Wrapf(err, "wire: query against %s.%s", db, collection)
	}
	w.Pop()

	if projection != nil {
		w.Document()
		if err := projection(w); err != nil {
			return errors.Wrapf(err, "wire: projection against %s.%s", db, collection)
		}
		w.Pop()
	}

	w.FlushLen()
	return nil
}

// BuildUpdate appends an update write command to w, matching
// documents with query and applying op to each (or, if upsert, to the
// document it inserts when none match).
func BuildUpdate(w *bson.Writer, requestID int32, db, collection string, query, op Doc, upsert bool) error {
	appendCommandHeader(w, requestID, db)

	w.Document()
	w.ElementString(bson.Field("update"), collection)
	w.PushArray(bson.Field("updates"))
	w.PushDocument(bson.Index(0))

	w.PushDocument(bson.Field("q"))
	if err := query(w); err != nil {
		return errors.Wrapf(err, "wire: update query against %s.%s", db, collection)
	}
	w.Pop()

	w.PushDocument(bson.Field("u"))
	if err := op(w); err != nil {
		return errors.Wrapf(err, "wire: update operation against %s.%s", db, collection)
	}
	w.Pop()

	if upsert {
		w.ElementBool(bson.Field("upsert"), true)
	}

	w.Pop()
	w.Pop()
	appendWriteConcern(w)
	w.Pop()

	w.FlushLen()
	return nil
}

// BuildDelete appends a delete write command removing every document
// in db.collection matching query.
func BuildDelete(w *bson.Writer, requestID int32, db, collection string, query Doc) error {
	appendCommandHeader(w, requestID, db)

	w.Document()
	w.ElementString(bson.Field("delete"), collection)
	w.PushArray(bson.Field("deletes"))
	w.PushDocument(bson.Index(0))

	w.PushDocument(bson.Field("q"))
	if err := query(w); err != nil {
		return errors.Wrapf(err, "wire: delete query against %s.%s", db, collection)
	}
	w.Pop()
	w.ElementInt32(bson.Field("limit"), 0)

	w.Pop()
	w.Pop()
	appendWriteConcern(w)
	w.Pop()

	w.FlushLen()
	return nil
}

// BuildGetMore appends a legacy OP_GET_MORE message fetching the next
// batch from cursorID on db.collection.
func BuildGetMore(w *bson.Writer, requestID int32, db, collection string, cursorID int64) {
	appendMsgHeader(w, requestID, OpGetMore)
	w.AppendRawInt32(0) // reserved, must be zero

	w.AppendRawBytes([]byte(db))
	w.AppendRawBytes([]byte{'.'})
	w.AppendCString(collection)

	w.AppendRawInt32(0) // numberToReturn
	w.AppendRawInt64(cursorID)
	w.FlushLen()
}

// BuildIsMaster appends an isMaster command against the admin
// database to w.
func BuildIsMaster(w *bson.Writer, requestID int32) {
	appendCommandHeader(w, requestID, "admin")
	w.Document()
	w.ElementInt32(bson.Field("ismaster"), 1)
	w.Pop()
	w.FlushLen()
}

// BuildKillCursors appends a legacy OP_KILL_CURSORS message retiring a
// single cursor.
func BuildKillCursors(w *bson.Writer, requestID int32, cursorID int64) {
	appendMsgHeader(w, requestID, OpKillCursors)
	w.AppendRawInt32(0) // reserved, must be zero
	w.AppendRawInt32(1) // numberOfCursorIDs
	w.AppendRawInt64(cursorID)
	w.FlushLen()
}
