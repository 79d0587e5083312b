// Package memory defines the record model and the Driver contract for the
// engram memory subsystem.
//
// A Driver owns the authoritative record table and its lookup indices and is
// the only component allowed to mutate them. Implementations live in
// subdirectories (pkg/memory/local is the in-process store); read-side
// enhancement (re-ranking, caching, analytics) lives in pkg/memory/search.
package memory

import (
	"time"
)

// Type classifies a memory record. Types are hard filters — they are matched
// exactly, never fuzzily.
type Type string

const (
	TypeConversation Type = "conversation"
	TypePreference   Type = "preference"
	TypeWorkflow     Type = "workflow"
	TypePattern      Type = "pattern"
	TypeFact         Type = "fact"
	TypeSummary      Type = "summary"
)

// Valid reports whether t is one of the known memory types.
func (t Type) Valid() bool {
	switch t {
	case TypeConversation, TypePreference, TypeWorkflow, TypePattern, TypeFact, TypeSummary:
		return true
	}
	return false
}

// ValueKind enumerates the allowed kinds for metadata values.
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
	KindMap
)

// Value is a fixed-kind metadata value. Using a tagged union instead of an
// untyped bag keeps caller-defined attributes type safe.
type Value struct {
	Kind ValueKind        `json:"kind"`
	Str  string           `json:"str,omitempty"`
	Num  float64          `json:"num,omitempty"`
	Bool bool             `json:"bool,omitempty"`
	Map  map[string]Value `json:"map,omitempty"`
}

// StringValue wraps a string metadata value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// NumberValue wraps a numeric metadata value.
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// BoolValue wraps a boolean metadata value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// MapValue wraps a nested metadata map.
func MapValue(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }

// Record is a single long-term memory. Every record belongs to exactly one
// (user, agent) pair.
type Record struct {
	// ID is an opaque unique identifier assigned at creation. Immutable.
	ID string `json:"id"`

	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id"`

	// Content is the text payload.
	Content string `json:"content"`

	// Embedding is the fixed-dimension vector for Content. All embeddings in
	// one store share the same dimension.
	Embedding []float32 `json:"embedding,omitempty"`

	Type Type `json:"type"`

	// Importance is a score in [0,1] driving ranking and pruning.
	Importance float64 `json:"importance"`

	// Tags are exact-match filter labels; insertion order is irrelevant.
	Tags []string `json:"tags,omitempty"`

	// Metadata is an open, typed key-value bag for caller attributes.
	Metadata map[string]Value `json:"metadata,omitempty"`

	// Version increments on every update.
	Version int `json:"version"`

	// AccessCount and LastAccessed mutate on every successful retrieval.
	AccessCount  int       `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`

	// Timestamp is the creation time.
	Timestamp time.Time `json:"timestamp"`

	// ExpiresAt is an optional absolute deadline. A record past its deadline
	// is logically deleted: excluded from search and retrieval unless the
	// caller opts in, and eligible for physical removal.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the record is past its expiry deadline at now.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Clone returns a deep copy so callers can't mutate store-internal state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	out := *r
	if r.Embedding != nil {
		out.Embedding = make([]float32, len(r.Embedding))
		copy(out.Embedding, r.Embedding)
	}
	if r.Tags != nil {
		out.Tags = make([]string, len(r.Tags))
		copy(out.Tags, r.Tags)
	}
	if r.Metadata != nil {
		out.Metadata = cloneMetadata(r.Metadata)
	}
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}

func cloneMetadata(m map[string]Value) map[string]Value {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		if v.Kind == KindMap && v.Map != nil {
			v.Map = cloneMetadata(v.Map)
		}
		out[k] = v
	}
	return out
}

// EstimateSize approximates the record's storage footprint in bytes. Used for
// health reporting and prune accounting, not for allocation decisions.
func (r *Record) EstimateSize() int64 {
	size := int64(len(r.ID) + len(r.UserID) + len(r.AgentID) + len(r.Content))
	size += int64(len(r.Embedding) * 4)
	for _, tag := range r.Tags {
		size += int64(len(tag))
	}
	for k, v := range r.Metadata {
		size += int64(len(k)) + estimateValueSize(v)
	}
	// Fixed fields: timestamps, counters, version.
	size += 64
	return size
}

func estimateValueSize(v Value) int64 {
	switch v.Kind {
	case KindString:
		return int64(len(v.Str))
	case KindMap:
		var size int64
		for k, nested := range v.Map {
			size += int64(len(k)) + estimateValueSize(nested)
		}
		return size
	default:
		return 8
	}
}

// DefaultImportance derives an importance score from a record's type and
// content length when the caller supplies none. Longer content earns a small
// bonus on top of a per-type baseline; the result stays in [0,1].
func DefaultImportance(t Type, contentLen int) float64 {
	var base float64
	switch t {
	case TypePreference:
		base = 0.8
	case TypeWorkflow, TypePattern:
		base = 0.7
	case TypeFact, TypeSummary:
		base = 0.6
	default:
		base = 0.5
	}

	bonus := float64(contentLen) / 5000 * 0.2
	if bonus > 0.2 {
		bonus = 0.2
	}

	importance := base + bonus
	if importance > 1 {
		importance = 1
	}
	return importance
}
