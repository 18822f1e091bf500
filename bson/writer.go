// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"encoding/binary"
	"math"
	"strconv"
)

// inlineCap is the size of the buffer a Writer starts with before it
// ever allocates. Documents smaller than this never touch the heap.
const inlineCap = 240

// Key identifies an element's position in a document or array: either
// a field name, or a non-negative array index rendered as its decimal
// ASCII representation. Build one with Field or Index.
type Key struct {
	name  string
	index int32
	isIdx bool
}

// Field builds a document field-name key.
func Field(name string) Key { return Key{name: name} }

// Index builds an array-index key. i must be non-negative.
func Index(i int) Key { return Key{index: int32(i), isIdx: true} }

func (k Key) len() int32 {
	if !k.isIdx {
		return int32(len(k.name))
	}
	return countDigits(k.index)
}

func (k Key) appendTo(buf []byte) []byte {
	if !k.isIdx {
		return append(buf, k.name...)
	}
	return strconv.AppendInt(buf, int64(k.index), 10)
}

// countDigits returns the number of digits in the decimal
// representation of n. n must be non-negative.
func countDigits(n int32) int32 {
	res := int32(1)
	for {
		if n < 10 {
			return res
		}
		if n < 100 {
			return res + 1
		}
		if n < 1000 {
			return res + 2
		}
		if n < 10000 {
			return res + 3
		}
		n /= 10000
		res += 4
	}
}

// Writer builds a BSON document (or a sequence of raw wire-protocol
// bytes) into an internal buffer, back-patching document and array
// lengths as they're closed.
//
// A Writer starts with an inline 240-byte buffer; it only allocates
// once that capacity is exceeded, after which it grows geometrically.
// Bytes() and Len() must be re-read after any mutating call: the
// backing array can move on growth, invalidating any previously
// returned slice.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	inline   [inlineCap]byte
	buf      []byte
	docStart int32
}

// NewWriter returns a Writer ready to use.
func NewWriter() *Writer {
	w := &Writer{}
	w.buf = w.inline[:0]
	return w
}

// Reset clears the writer so it can be reused to build another value.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.docStart = 0
}

// Bytes returns the buffer built so far. The returned slice is only
// valid until the next mutating call.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int32 { return int32(len(w.buf)) }

func (w *Writer) reserve(need int32) {
	if int32(cap(w.buf))-int32(len(w.buf)) >= need {
		return
	}
	curCap := int32(cap(w.buf))
	newCap := 2 * curCap
	if alt := curCap + need + 2; alt > newCap {
		newCap = alt
	}
	nb := make([]byte, len(w.buf), newCap)
	copy(nb, w.buf)
	w.buf = nb
}

// startField reserves room for the tag, key, and cntLen bytes of
// content, and writes the tag and key (leaving the content bytes for
// the caller to append without triggering another reservation).
func (w *Writer) startField(tag Tag, key Key, cntLen int32) {
	klen := key.len()
	w.reserve(1 + klen + 1 + cntLen)
	w.buf = append(w.buf, byte(tag))
	w.buf = key.appendTo(w.buf)
	w.buf = append(w.buf, 0)
}

// startDocument writes the in-buffer linked-list slot used to unwind
// nested document/array lengths on Pop, and advances doc_start.
func (w *Writer) startDocument() {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(w.docStart))
	w.buf = append(w.buf, tmp[:]...)
	w.docStart = int32(len(w.buf)) - 4
}

// Document starts a top-level BSON document. Close it with Pop.
func (w *Writer) Document() {
	w.reserve(5)
	w.startDocument()
}

// PushDocument starts a nested document under key. Close it with Pop.
func (w *Writer) PushDocument(key Key) {
	w.startField(TagDocument, key, 10)
	w.startDocument()
}

// PushArray starts a nested array under key. Close it with Pop. Array
// elements should be written with Index(0), Index(1), ... in order.
func (w *Writer) PushArray(key Key) {
	w.startField(TagArray, key, 10)
	w.startDocument()
}

// Pop closes the document or array most recently opened with
// Document, PushDocument, or PushArray, back-patching its length.
func (w *Writer) Pop() {
	w.reserve(1)
	w.buf = append(w.buf, 0)
	docLen := int32(len(w.buf)) - w.docStart
	prev := int32(binary.LittleEndian.Uint32(w.buf[w.docStart : w.docStart+4]))
	binary.LittleEndian.PutUint32(w.buf[w.docStart:w.docStart+4], uint32(docLen))
	w.docStart = prev
}

// FlushLen writes the current length of the buffer into its first
// four bytes. Used by wire-protocol packets, whose leading
// message_length field is patched in last.
func (w *Writer) FlushLen() {
	binary.LittleEndian.PutUint32(w.buf[0:4], uint32(len(w.buf)))
}

// ElementString appends a UTF-8 string element.
func (w *Writer) ElementString(key Key, value string) {
	w.elementUtf8(key, value)
}

// ElementBytes appends a UTF-8 string element from a byte slice,
// avoiding a string conversion.
func (w *Writer) ElementBytes(key Key, value []byte) {
	flen := 4 + int32(len(value)) + 1
	w.startField(TagUtf8, key, flen)
	wlen := int32(len(value)) + 1
	var lb [4]byte
	binary.LittleEndian.PutUint32(lb[:], uint32(wlen))
	w.buf = append(w.buf, lb[:]...)
	w.buf = append(w.buf, value...)
	w.buf = append(w.buf, 0)
}

func (w *Writer) elementUtf8(key Key, value string) {
	flen := 4 + int32(len(value)) + 1
	w.startField(TagUtf8, key, flen)
	wlen := int32(len(value)) + 1
	var lb [4]byte
	binary.LittleEndian.PutUint32(lb[:], uint32(wlen))
	w.buf = append(w.buf, lb[:]...)
	w.buf = append(w.buf, value...)
	w.buf = append(w.buf, 0)
}

// ElementInt32 appends a signed 32-bit integer element.
func (w *Writer) ElementInt32(key Key, value int32) {
	w.startField(TagInt32, key, 4)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(value))
	w.buf = append(w.buf, b[:]...)
}

// ElementInt64 appends a signed 64-bit integer element.
func (w *Writer) ElementInt64(key Key, value int64) {
	w.startField(TagInt64, key, 8)
	w.appendRawInt64(value)
}

// ElementDouble appends an IEEE-754 double element.
func (w *Writer) ElementDouble(key Key, value float64) {
	w.startField(TagDouble, key, 8)
	w.appendRawInt64(int64(math.Float64bits(value)))
}

// ElementBool appends a boolean element.
func (w *Writer) ElementBool(key Key, value bool) {
	w.startField(TagBool, key, 1)
	if value {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// ElementNull appends a null element.
func (w *Writer) ElementNull(key Key) {
	w.startField(TagNull, key, 0)
}

// ElementUtcDatetime appends a UTC-datetime element: signed
// milliseconds since the Unix epoch.
func (w *Writer) ElementUtcDatetime(key Key, value int64) {
	w.startField(TagUtcDatetime, key, 8)
	w.appendRawInt64(value)
}

// ElementTimestamp appends an opaque 8-byte timestamp element.
func (w *Writer) ElementTimestamp(key Key, value int64) {
	w.startField(TagTimestamp, key, 8)
	w.appendRawInt64(value)
}

// ElementObjectId appends a 12-byte ObjectId element.
func (w *Writer) ElementObjectId(key Key, value [ObjectIDLen]byte) {
	w.startField(TagObjectId, key, ObjectIDLen)
	w.buf = append(w.buf, value[:]...)
}

// ElementBinData appends a binary-data element.
func (w *Writer) ElementBinData(key Key, subtype BindataSubtype, value []byte) {
	flen := 4 + 1 + int32(len(value))
	w.startField(TagBinData, key, flen)
	var lb [4]byte
	binary.LittleEndian.PutUint32(lb[:], uint32(len(value)))
	w.buf = append(w.buf, lb[:]...)
	w.buf = append(w.buf, byte(subtype))
	w.buf = append(w.buf, value...)
}

func (w *Writer) appendRawInt64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, b[:]...)
}

// AppendRawInt32 appends a raw, untagged, little-endian int32 to the
// buffer. Used by the wire-protocol layer to build packet headers and
// fixed-layout fields that sit outside any BSON document.
func (w *Writer) AppendRawInt32(v int32) {
	w.reserve(4)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	w.buf = append(w.buf, b[:]...)
}

// AppendRawInt64 appends a raw, untagged, little-endian int64.
func (w *Writer) AppendRawInt64(v int64) {
	w.reserve(8)
	w.appendRawInt64(v)
}

// AppendRawBytes appends raw bytes with no tag, key, or terminator.
func (w *Writer) AppendRawBytes(b []byte) {
	w.reserve(int32(len(b)))
	w.buf = append(w.buf, b...)
}

// AppendCString appends s followed by a NUL terminator, with no tag.
func (w *Writer) AppendCString(s string) {
	w.reserve(int32(len(s)) + 1)
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}
