// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package kwmatch implements a fixed-memory, allocation-free matcher
// that narrows a small, fixed vocabulary of keywords down to (at most)
// one match, one input byte at a time. It exists to dispatch on a BSON
// field name as it streams in, without ever materializing the name
// into a string or hashing it.
package kwmatch

import "sort"

// Action pairs a keyword with the value a Matcher should return once
// that keyword is confirmed.
type Action[T any] struct {
	Match string
	Val   T
}

type state uint8

const (
	running state = iota
	success
	failed
)

// Matcher narrows a sorted table of keywords to a single candidate as
// bytes are fed to it one at a time via AddChar, terminated by a 0
// byte (mirroring a C string's NUL terminator). It holds no more than
// a handful of bytes of state and never allocates after construction.
//
// A Matcher is not safe for concurrent use, but Reset lets a single
// instance be reused across many matches.
type Matcher[T any] struct {
	keywords []Action[T]
	def      T
	pos      uint8
	min      uint8
	max      uint8
	state    state
}

// New builds a Matcher over actions, returned in place of def when no
// keyword matches. actions need not be pre-sorted; New sorts a copy.
// There must be between 1 and 255 actions, and every keyword must be
// shorter than 256 bytes — these are the limits that keep a Matcher's
// state in a handful of bytes.
func New[T any](def T, actions ...Action[T]) *Matcher[T] {
	if len(actions) == 0 {
		panic("kwmatch: New called with no actions")
	}
	if len(actions) >= 256 {
		panic("kwmatch: too many actions (max 255)")
	}
	sorted := make([]Action[T], len(actions))
	copy(sorted, actions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Match < sorted[j].Match })
	for _, a := range sorted {
		if len(a.Match) >= 256 {
			panic("kwmatch: keyword too long (max 255 bytes): " + a.Match)
		}
	}
	m := &Matcher[T]{keywords: sorted, def: def}
	m.Reset()
	return m
}

// Reset returns the matcher to its initial state so it can match
// another keyword.
func (m *Matcher[T]) Reset() {
	m.state = running
	m.pos = 0
	m.min = 0
	m.max = uint8(len(m.keywords) - 1)
}

// charAt returns the byte at position pos in s, or 0 if pos is at or
// past the end of s — the same value a NUL-terminated C string would
// yield, which every keyword in the table is implicitly treated as.
func charAt(s string, pos uint8) byte {
	if int(pos) >= len(s) {
		return 0
	}
	return s[pos]
}

// AddChar advances the matcher by one input byte. Feed it the bytes of
// the candidate keyword in order, followed by a final 0 byte once the
// candidate is complete (matching the streaming reader's chunked
// field-name delivery, which is itself terminated by a NUL). Calling
// AddChar again after the matcher has failed is a harmless no-op.
func (m *Matcher[T]) AddChar(c byte) {
	if m.state != running {
		return
	}

	for m.min < m.max && charAt(m.keywords[m.min].Match, m.pos) != c {
		m.min++
	}
	for m.min < m.max && charAt(m.keywords[m.max].Match, m.pos) != c {
		m.max--
	}

	if m.min == m.max {
		if charAt(m.keywords[m.max].Match, m.pos) != c {
			m.state = failed
			return
		} else if c == 0 {
			m.state = success
			return
		}
	}
	m.pos++
}

// Done reports whether the matcher has reached a terminal state
// (Success or Failed) and will ignore further AddChar calls.
func (m *Matcher[T]) Done() bool {
	return m.state != running
}

// Result returns the matched action's value, or the default value
// passed to New if the input never matched (or matching hasn't
// finished yet).
func (m *Matcher[T]) Result() T {
	if m.state == success {
		return m.keywords[m.min].Val
	}
	return m.def
}

// Match drives AddChar across every byte of s plus a trailing NUL and
// returns the resulting Result, leaving the matcher Reset for reuse. A
// convenience for callers that already have the whole keyword in hand.
func (m *Matcher[T]) Match(s string) T {
	m.Reset()
	for i := 0; i < len(s); i++ {
		m.AddChar(s[i])
	}
	m.AddChar(0)
	return m.Result()
}
