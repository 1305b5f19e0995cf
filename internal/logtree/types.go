// Package logtree parses the ordered event log one benchmarking run
// produces into a per-thread span tree of nested scopes, pairing each
// scope's start and end message (spec.md §4.7).
package logtree

import "errors"

// ThreadID is the raw OS thread identifier as it appears in the log.
type ThreadID uint64

// ThreadNumber is the stable, monotonically increasing identifier the
// ThreadIdMapper assigns on first sight of a ThreadID. It is reassigned if
// the OS later reuses the same ThreadID for a different logical thread,
// because the mapping is forgotten when the owning Thread-kind scope closes.
type ThreadNumber uint64

// TimingKind distinguishes the eight point-in-time message shapes the log
// format carries.
type TimingKind int

// Supported TimingKind values.
const (
	TStart TimingKind = iota
	T
	TS
	TE
	TThreadStart
	TThreadEnd
	TEnd
	TIO
)

// ScopeKind is the kind of scope a Scope-variant Span represents.
type ScopeKind int

// Supported ScopeKind values, in the nesting order the log format expects:
// a Process contains Threads, a Thread contains Scopes.
const (
	ScopeProcess ScopeKind = iota
	ScopeThread
	ScopeScope
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeProcess:
		return "process"
	case ScopeThread:
		return "thread"
	case ScopeScope:
		return "scope"
	default:
		return "unknown"
	}
}

// TimingMessage is one Timing-kind log record.
type TimingMessage struct {
	Kind            TimingKind
	ThreadID        ThreadID
	ProbeName       string
	RealTimeNanos   uint64
	CPUTimeNanos    uint64
	SysTimeNanos    uint64
	ContextSwitches uint64
}

// KeyValueMessage is one KeyValue-kind log record.
type KeyValueMessage struct {
	ThreadID ThreadID
	Key      string
	Value    string
}

// Message is one line of the log: exactly one of Timing or KeyValue is set.
type Message struct {
	Timing   *TimingMessage
	KeyValue *KeyValueMessage
}

// SpanID indexes into a Tree's arena.
type SpanID int

// SpanVariant distinguishes the three Span shapes: Scope, KeyValue and Point.
type SpanVariant int

// Supported SpanVariant values.
const (
	VariantScope SpanVariant = iota
	VariantKeyValue
	VariantPoint
)

// Span is one node of the parsed tree: either a Scope (with a start and,
// once closed, an end Timing message), a KeyValue attached to the
// innermost open scope on its thread, or a Point (a standalone T/TIO
// timing event, attached the same way as a KeyValue).
type Span struct {
	ID       SpanID
	Parent   *SpanID
	Children []SpanID

	Variant SpanVariant

	// Populated when Variant == VariantScope.
	ScopeKind    ScopeKind
	ThreadNumber ThreadNumber
	ProbeName    string
	Start        *TimingMessage
	End          *TimingMessage

	// Populated when Variant == VariantKeyValue.
	Key   string
	Value string

	// Populated when Variant == VariantPoint.
	Point *TimingMessage
}

// StartAndEnd returns the span's start/end timing pair if both are present
// and their probe names match, as every well-formed Scope span's should be
// once parsing completes.
func (s *Span) StartAndEnd() (*TimingMessage, *TimingMessage, bool) {
	if s.Variant != VariantScope || s.Start == nil || s.End == nil {
		return nil, nil, false
	}

	if s.Start.ProbeName != s.End.ProbeName {
		return nil, nil, false
	}

	return s.Start, s.End, true
}

// Sentinel parse errors (spec.md §7: "mismatched scope closure, KeyValue
// without enclosing scope" are fatal to that file).
var (
	ErrNoOpenScope       = errors.New("logtree: message requires an open scope on its thread")
	ErrScopeKindMismatch = errors.New("logtree: scope closed with the wrong kind")
	ErrProbeNameMismatch = errors.New("logtree: scope start/end probe name mismatch")
	ErrPopPastEmpty      = errors.New("logtree: scope close with no open scope on its thread")
)
