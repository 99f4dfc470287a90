// Package idf implements a lenient parser and provenance-preserving writer for
// the block-structured IDF building model format. Records untouched by any
// corrector serialize back byte-identical to their source text.
package idf

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
)

// Field is one value slot in a record, with the optional inline annotation
// that followed it in the source ("!- Zone Name" style).
type Field struct {
	Value   string
	Comment string
}

// Record is a named, typed block. Identity is (Type, Name): type keywords are
// case-insensitive, names are case-sensitive. For named object classes the
// name is field 0.
type Record struct {
	Type   string
	Fields []Field

	// raw holds the exact source block while the record is untouched.
	// Any mutation clears it, switching serialization to canonical form.
	raw string
}

// Name returns the record's name (field 0), or "" for unnamed classes.
func (r *Record) Name() string {
	if len(r.Fields) == 0 {
		return ""
	}
	return r.Fields[0].Value
}

// Value returns field i, or "" when the record is shorter than i+1.
func (r *Record) Value(i int) string {
	if i < 0 || i >= len(r.Fields) {
		return ""
	}
	return r.Fields[i].Value
}

// Float returns field i parsed as a number.
func (r *Record) Float(i int) (float64, bool) {
	v := strings.TrimSpace(r.Value(i))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// SetValue sets field i, growing the field list as needed, and marks the
// record dirty so it re-serializes canonically.
func (r *Record) SetValue(i int, v string) {
	if i < 0 {
		return
	}
	for len(r.Fields) <= i {
		r.Fields = append(r.Fields, Field{})
	}
	if r.Fields[i].Value == v {
		return
	}
	r.Fields[i].Value = v
	r.raw = ""
}

// SetComment annotates field i without affecting the value.
func (r *Record) SetComment(i int, c string) {
	for len(r.Fields) <= i {
		r.Fields = append(r.Fields, Field{})
	}
	r.Fields[i].Comment = c
	r.raw = ""
}

// Truncate drops fields from index i on.
func (r *Record) Truncate(i int) {
	if i < 0 || i >= len(r.Fields) {
		return
	}
	r.Fields = r.Fields[:i]
	r.raw = ""
}

// TypeIs reports whether the record's type keyword matches t, ignoring case.
func (r *Record) TypeIs(t string) bool {
	return strings.EqualFold(r.Type, t)
}

// Clone returns a deep copy carrying the same provenance.
func (r *Record) Clone() *Record {
	c := &Record{Type: r.Type, raw: r.raw}
	c.Fields = make([]Field, len(r.Fields))
	copy(c.Fields, r.Fields)
	return c
}

// node is one serialization unit: a record or an opaque gap (comment and
// blank lines between records, preserved verbatim).
type node struct {
	rec *Record
	gap string
}

// Model is one parsed document: an ordered collection of records plus the
// inter-record text needed to reproduce the source.
type Model struct {
	nodes []node
}

// Records returns all records in document order.
func (m *Model) Records() []*Record {
	out := make([]*Record, 0, len(m.nodes))
	for _, n := range m.nodes {
		if n.rec != nil {
			out = append(out, n.rec)
		}
	}
	return out
}

// RecordsByType yields records of the given type keyword (case-insensitive)
// in document order.
func (m *Model) RecordsByType(t string) iter.Seq[*Record] {
	return func(yield func(*Record) bool) {
		for _, n := range m.nodes {
			if n.rec != nil && n.rec.TypeIs(t) {
				if !yield(n.rec) {
					return
				}
			}
		}
	}
}

// Find returns the record with the given type and exact name, or nil.
func (m *Model) Find(t, name string) *Record {
	for r := range m.RecordsByType(t) {
		if r.Name() == name {
			return r
		}
	}
	return nil
}

// Append adds a record at the end of the document.
func (m *Model) Append(r *Record) {
	m.nodes = append(m.nodes, node{rec: r})
}

// Remove deletes every record matching the predicate and returns the count.
func (m *Model) Remove(match func(*Record) bool) int {
	kept := m.nodes[:0]
	removed := 0
	for _, n := range m.nodes {
		if n.rec != nil && match(n.rec) {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	m.nodes = kept
	return removed
}

// Clone returns a deep copy of the model. Correctors that must not compound
// across retry attempts operate on clones of a base snapshot.
func (m *Model) Clone() *Model {
	c := &Model{nodes: make([]node, len(m.nodes))}
	for i, n := range m.nodes {
		c.nodes[i] = n
		if n.rec != nil {
			c.nodes[i].rec = n.rec.Clone()
		}
	}
	return c
}

// FormatError reports an unparseable block in the input document.
type FormatError struct {
	Line int
	Msg  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("idf: line %d: %s", e.Line, e.Msg)
}
