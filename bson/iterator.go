// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

// ValueIterator walks the elements of a Document or Array Value in
// insertion order without allocating.
type ValueIterator struct {
	data []byte
	next int
	cur  Value
	key  []byte
}

// NewValueIterator returns an iterator over v's elements. If v is not
// a Document or Array, the returned iterator is immediately Done.
func NewValueIterator(v Value) *ValueIterator {
	it := &ValueIterator{}
	if v.tag != TagDocument && v.tag != TagArray {
		return it
	}
	it.data = v.data
	it.moveTo(4)
	return it
}

// Done reports whether the iterator has no current element, either
// because it reached the end or because the document was malformed.
func (it *ValueIterator) Done() bool { return it.cur.Empty() }

// Key returns the current element's key: a field name for a Document,
// or the ASCII decimal index for an Array.
func (it *ValueIterator) Key() []byte { return it.key }

// Value returns the current element's value.
func (it *ValueIterator) Value() Value { return it.cur }

// Next advances to the following element. Calling it once Done is a
// no-op.
func (it *ValueIterator) Next() {
	if it.cur.Empty() {
		return
	}
	it.moveTo(it.next)
}

func (it *ValueIterator) invalidate() {
	it.cur = Value{}
	it.key = nil
}

func (it *ValueIterator) moveTo(curs int) {
	end := len(it.data)
	if curs >= end-1 {
		it.invalidate()
		return
	}
	tag := ToTag(it.data[curs])
	if tag == TagMinKey {
		it.invalidate()
		return
	}
	curs++
	keyStart := curs
	for it.data[curs] != 0 {
		curs++
		if curs >= end-1 {
			it.invalidate()
			return
		}
	}
	key := it.data[keyStart:curs]
	curs++ // skip the key's NUL terminator

	window := end - curs - 1
	if window < 0 {
		window = 0
	}
	size := getValueLength(tag, it.data[curs:curs+window])
	if size < 0 {
		it.invalidate()
		return
	}

	it.key = key
	it.cur = Value{data: it.data[curs : curs+int(size)], tag: tag}
	it.next = curs + int(size)
}
