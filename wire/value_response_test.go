// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wire_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/till-varoquaux/okmongo/bson"
	"github.com/till-varoquaux/okmongo/wire"
)

type valueSink struct {
	docs []bson.Value
}

func (s *valueSink) EmitBsonValue(v bson.Value) { s.docs = append(s.docs, v) }

func TestValueResponseReaderSingleDocument(t *testing.T) {
	doc := intDoc(t, "x", 1)
	reply := buildReply(t, 0, 0, doc)

	sink := &valueSink{}
	vr := wire.NewValueResponseReader(sink)
	n, err := vr.Consume(reply)
	require.NoError(t, err)
	require.Equal(t, len(reply), n)
	require.True(t, vr.Done())
	require.Equal(t, int32(1), vr.Header().NumberReturned)

	require.Len(t, sink.docs, 1)
	require.Equal(t, int32(1), sink.docs[0].GetField("x").Int32())
}

func TestValueResponseReaderZeroDocuments(t *testing.T) {
	reply := buildReply(t, 0, 0)

	sink := &valueSink{}
	vr := wire.NewValueResponseReader(sink)
	n, err := vr.Consume(reply)
	require.NoError(t, err)
	require.Equal(t, len(reply), n)
	require.True(t, vr.Done())
	require.Empty(t, sink.docs)
}

func TestValueResponseReaderMultipleDocuments(t *testing.T) {
	docs := [][]byte{intDoc(t, "x", 1), intDoc(t, "x", 2), intDoc(t, "x", 3)}
	reply := buildReply(t, 0, 0, docs...)

	sink := &valueSink{}
	vr := wire.NewValueResponseReader(sink)
	n, err := vr.Consume(reply)
	require.NoError(t, err)
	require.Equal(t, len(reply), n)
	require.True(t, vr.Done())

	require.Len(t, sink.docs, 3)
	for i, want := range []int32{1, 2, 3} {
		require.Equal(t, want, sink.docs[i].GetField("x").Int32())
	}
}

func TestValueResponseReaderChunkedAcrossDocumentBoundaries(t *testing.T) {
	docs := [][]byte{intDoc(t, "x", 10), intDoc(t, "x", 20)}
	reply := buildReply(t, 0, 0, docs...)

	sink := &valueSink{}
	vr := wire.NewValueResponseReader(sink)
	total := 0
	for i := 0; i < len(reply); i += 3 {
		end := i + 3
		if end > len(reply) {
			end = len(reply)
		}
		n, err := vr.Consume(reply[i:end])
		require.NoError(t, err)
		total += n
	}
	require.Equal(t, len(reply), total)
	require.True(t, vr.Done())
	require.Len(t, sink.docs, 2)
	require.Equal(t, int32(10), sink.docs[0].GetField("x").Int32())
	require.Equal(t, int32(20), sink.docs[1].GetField("x").Int32())
}

func TestValueResponseReaderReset(t *testing.T) {
	doc := intDoc(t, "x", 5)
	reply := buildReply(t, 0, 0, doc)

	sink := &valueSink{}
	vr := wire.NewValueResponseReader(sink)
	_, err := vr.Consume(reply)
	require.NoError(t, err)
	require.True(t, vr.Done())

	vr.Reset()
	require.False(t, vr.Done())
	sink.docs = nil
	n, err := vr.Consume(reply)
	require.NoError(t, err)
	require.Equal(t, len(reply), n)
	require.True(t, vr.Done())
	require.Len(t, sink.docs, 1)
}
