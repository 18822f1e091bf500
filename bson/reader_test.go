// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/till-varoquaux/okmongo/bson"
	"github.com/till-varoquaux/okmongo/internal/dump"
)

func flatDoc(t *testing.T) []byte {
	t.Helper()
	w := bson.NewWriter()
	w.Document()
	w.ElementInt32(bson.Field("a"), 1)
	w.ElementString(bson.Field("b"), "hi")
	w.Pop()
	return append([]byte(nil), w.Bytes()...)
}

func TestReaderOneByteAtATime(t *testing.T) {
	data := flatDoc(t)
	b := dump.NewBuilder()
	r := bson.NewReader(b)
	total := 0
	for _, c := range data {
		n, err := r.Consume([]byte{c})
		require.NoError(t, err)
		total += n
	}
	require.Equal(t, len(data), total)
	require.True(t, r.Done())
	require.NoError(t, b.Err())
	got := b.Result().(map[string]dump.Value)
	require.Equal(t, int32(1), got["a"])
	require.Equal(t, "hi", got["b"])
}

func TestReaderStopsAtStateDoneAndReportsLeftoverBytes(t *testing.T) {
	data := flatDoc(t)
	extra := append(append([]byte(nil), data...), 0xFF, 0xFE)

	b := dump.NewBuilder()
	r := bson.NewReader(b)
	n, err := r.Consume(extra)
	require.NoError(t, err)
	require.Equal(t, len(data), n, "reader must not consume bytes past its own document")
	require.True(t, r.Done())
}

func TestReaderResumesAfterTruncatedLengthPrefix(t *testing.T) {
	b := dump.NewBuilder()
	r := bson.NewReader(b)
	n, err := r.Consume([]byte{5, 0, 0})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.False(t, r.Done())

	n2, err := r.Consume([]byte{0})
	require.NoError(t, err)
	require.Equal(t, 1, n2)
	// length 5 means an empty document: one more byte (the terminating
	// NUL) finishes it.
	require.False(t, r.Done())

	n3, err := r.Consume([]byte{0})
	require.NoError(t, err)
	require.Equal(t, 1, n3)
	require.True(t, r.Done())
}

func TestReaderRejectsBadTag(t *testing.T) {
	// length prefix (unvalidated by the streaming reader) + an invalid
	// tag byte (0x7F, TagMaxKey, never a legal element tag) + a field
	// name "a" terminated by NUL.
	buf := []byte{0, 0, 0, 0, 0x7F, 'a', 0}

	b := dump.NewBuilder()
	r := bson.NewReader(b)
	n, err := r.Consume(buf)
	require.Error(t, err)
	require.Equal(t, -1, n)
	require.True(t, r.Done())
	require.Error(t, b.Err())
}

func TestReaderIgnoresConsumeAfterError(t *testing.T) {
	b := dump.NewBuilder()
	r := bson.NewReader(b)
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F, 0}
	_, err := r.Consume(buf)
	require.Error(t, err)

	n, err := r.Consume([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestReaderIgnoresConsumeAfterDoneWithNoLeftoverBytes(t *testing.T) {
	data := flatDoc(t)
	b := dump.NewBuilder()
	r := bson.NewReader(b)
	n, err := r.Consume(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.True(t, r.Done())

	n2, err := r.Consume([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 0, n2)
}

func TestReaderResetAllowsReuse(t *testing.T) {
	data := flatDoc(t)
	b := dump.NewBuilder()
	r := bson.NewReader(b)
	_, err := r.Consume(data)
	require.NoError(t, err)
	require.True(t, r.Done())

	r.Reset()
	require.False(t, r.Done())
	require.Equal(t, int32(0), r.BytesSeen())

	n, err := r.Consume(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.True(t, r.Done())
}

func TestReaderBytesSeenAccumulatesAcrossChunks(t *testing.T) {
	data := flatDoc(t)
	b := dump.NewBuilder()
	r := bson.NewReader(b)
	mid := len(data) / 2
	_, err := r.Consume(data[:mid])
	require.NoError(t, err)
	require.Equal(t, int32(mid), r.BytesSeen())

	_, err = r.Consume(data[mid:])
	require.NoError(t, err)
	require.Equal(t, int32(len(data)), r.BytesSeen())
}

// stubHeaderConsumer lets a test drive StateHdr/StateUsr1..StateUsr4
// without pulling in the wire package, exercising the exported seam
// methods (StartDocument, ConsumeFrom, ReadBytes) directly.
type stubHeaderConsumer struct {
	lenBuf   [4]byte
	got      int32
	consumed bool
}

func (s *stubHeaderConsumer) ConsumeHdr(r *bson.Reader, b []byte) (int, error) {
	n, done := r.ReadBytes(b, 0, s.lenBuf[:], 4, bson.StateHdr)
	if !done {
		return n, nil
	}
	s.got = int32(s.lenBuf[0]) | int32(s.lenBuf[1])<<8 | int32(s.lenBuf[2])<<16 | int32(s.lenBuf[3])<<24
	s.consumed = true
	r.StartDocument()
	return r.ConsumeFrom(b, n)
}

func (s *stubHeaderConsumer) ConsumeUsr1(r *bson.Reader, b []byte) (int, error) {
	return 0, &bson.DecodeError{Msg: "unused"}
}
func (s *stubHeaderConsumer) ConsumeUsr2(r *bson.Reader, b []byte) (int, error) {
	return 0, &bson.DecodeError{Msg: "unused"}
}
func (s *stubHeaderConsumer) ConsumeUsr3(r *bson.Reader, b []byte) (int, error) {
	return 0, &bson.DecodeError{Msg: "unused"}
}
func (s *stubHeaderConsumer) ConsumeUsr4(r *bson.Reader, b []byte) (int, error) {
	return 0, &bson.DecodeError{Msg: "unused"}
}

func TestReaderHeaderConsumerSeam(t *testing.T) {
	doc := flatDoc(t)
	var frame []byte
	frame = append(frame, 42, 0, 0, 0) // a 4-byte "header" ahead of the document
	frame = append(frame, doc...)

	hdr := &stubHeaderConsumer{}
	b := dump.NewBuilder()
	r := bson.NewReaderState(b, hdr, bson.StateHdr)

	n, err := r.Consume(frame)
	require.NoError(t, err)
	require.Equal(t, len(frame), n)
	require.True(t, r.Done())
	require.True(t, hdr.consumed)
	require.Equal(t, int32(42), hdr.got)

	got := b.Result().(map[string]dump.Value)
	require.Equal(t, int32(1), got["a"])
	require.Equal(t, "hi", got["b"])
}

func TestReaderHeaderConsumerSeamAcrossChunks(t *testing.T) {
	doc := flatDoc(t)
	var frame []byte
	frame = append(frame, 7, 0, 0, 0)
	frame = append(frame, doc...)

	hdr := &stubHeaderConsumer{}
	b := dump.NewBuilder()
	r := bson.NewReaderState(b, hdr, bson.StateHdr)

	total := 0
	for i := 0; i < len(frame); i += 3 {
		end := i + 3
		if end > len(frame) {
			end = len(frame)
		}
		n, err := r.Consume(frame[i:end])
		require.NoError(t, err)
		total += n
	}
	require.Equal(t, len(frame), total)
	require.True(t, r.Done())
	require.Equal(t, int32(7), hdr.got)
}

func TestReaderMissingHeaderConsumerFails(t *testing.T) {
	b := dump.NewBuilder()
	r := bson.NewReaderState(b, nil, bson.StateHdr)
	n, err := r.Consume([]byte{1, 2, 3, 4})
	require.Error(t, err)
	require.Equal(t, -1, n)
	require.True(t, r.Done())
}

func TestReaderNestedDepthTracking(t *testing.T) {
	w := bson.NewWriter()
	w.Document()
	w.PushDocument(bson.Field("inner"))
	w.ElementInt32(bson.Field("x"), 1)
	w.Pop()
	w.Pop()
	data := append([]byte(nil), w.Bytes()...)

	b := dump.NewBuilder()
	r := bson.NewReader(b)
	require.Equal(t, int8(0), r.Depth())
	// Feed byte by byte and check depth grows then shrinks.
	var maxDepth int8
	for i := range data {
		_, err := r.Consume(data[i : i+1])
		require.NoError(t, err)
		if r.Depth() > maxDepth {
			maxDepth = r.Depth()
		}
	}
	require.Equal(t, int8(2), maxDepth)
	require.Equal(t, int8(0), r.Depth())
	require.True(t, r.Done())
}
