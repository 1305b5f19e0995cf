package logtree

import "fmt"

// processThreadID is the implicit thread id Process-kind scopes are
// anchored to: a run's TStart/TEnd pair does not carry its own tid in the
// log format, so the parser keys it at a reserved id no real OS thread uses
// here.
const processThreadID ThreadID = 0

// Tree is the parsed result: an arena of Span nodes plus the probe-name
// index built while parsing.
type Tree struct {
	spans      []Span
	probeIndex map[string][]SpanID
}

// Span looks up one node by id.
func (t *Tree) Span(id SpanID) *Span { return &t.spans[id] }

// Len returns the number of spans in the arena.
func (t *Tree) Len() int { return len(t.spans) }

// ProbeNames returns the sorted set of probe names seen among Scope spans.
func (t *Tree) ProbeNames() []string {
	names := make([]string, 0, len(t.probeIndex))
	for name := range t.probeIndex {
		names = append(names, name)
	}

	sortStrings(names)

	return names
}

// SpansForProbe returns every Scope span recorded under the given probe
// name, in the order they closed.
func (t *Tree) SpansForProbe(name string) []SpanID {
	return t.probeIndex[name]
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

type parser struct {
	tree         Tree
	threadStacks map[ThreadID][]SpanID
	mapper       *ThreadIdMapper
}

// Parse consumes an ordered message stream and builds the span tree,
// failing fatally on the first structural inconsistency (spec.md §4.7,
// §7: "Parser errors are fatal to that file").
func Parse(messages []Message) (*Tree, error) {
	p := &parser{
		tree:         Tree{probeIndex: make(map[string][]SpanID)},
		threadStacks: make(map[ThreadID][]SpanID),
		mapper:       NewThreadIdMapper(),
	}

	for i, msg := range messages {
		err := p.apply(msg)
		if err != nil {
			return nil, fmt.Errorf("logtree: message %d: %w", i, err)
		}
	}

	return &p.tree, nil
}

func (p *parser) apply(msg Message) error {
	switch {
	case msg.Timing != nil:
		return p.applyTiming(msg.Timing)
	case msg.KeyValue != nil:
		return p.applyKeyValue(msg.KeyValue)
	default:
		return fmt.Errorf("logtree: empty message")
	}
}

func (p *parser) applyTiming(tm *TimingMessage) error {
	switch tm.Kind {
	case TStart:
		p.open(processThreadID, ScopeProcess, tm)

		return nil
	case TThreadStart:
		p.open(tm.ThreadID, ScopeThread, tm)

		return nil
	case TS:
		p.open(tm.ThreadID, ScopeScope, tm)

		return nil
	case TEnd:
		return p.close(processThreadID, ScopeProcess, tm)
	case TThreadEnd:
		err := p.close(tm.ThreadID, ScopeThread, tm)
		if err != nil {
			return err
		}

		p.mapper.Forget(tm.ThreadID)

		return nil
	case TE:
		return p.close(tm.ThreadID, ScopeScope, tm)
	case T, TIO:
		return p.attachPoint(tm.ThreadID, tm)
	default:
		return fmt.Errorf("logtree: unknown timing kind %d", tm.Kind)
	}
}

func (p *parser) applyKeyValue(kv *KeyValueMessage) error {
	stack := p.threadStacks[kv.ThreadID]
	if len(stack) == 0 {
		return fmt.Errorf("%w: thread %d key %q", ErrNoOpenScope, kv.ThreadID, kv.Key)
	}

	parent := stack[len(stack)-1]
	id := SpanID(len(p.tree.spans))

	p.tree.spans = append(p.tree.spans, Span{
		ID:      id,
		Parent:  &parent,
		Variant: VariantKeyValue,
		Key:     kv.Key,
		Value:   kv.Value,
	})

	p.tree.spans[parent].Children = append(p.tree.spans[parent].Children, id)

	return nil
}

func (p *parser) attachPoint(tid ThreadID, tm *TimingMessage) error {
	stack := p.threadStacks[tid]
	if len(stack) == 0 {
		return fmt.Errorf("%w: thread %d probe %q", ErrNoOpenScope, tid, tm.ProbeName)
	}

	parent := stack[len(stack)-1]
	id := SpanID(len(p.tree.spans))

	p.tree.spans = append(p.tree.spans, Span{
		ID:      id,
		Parent:  &parent,
		Variant: VariantPoint,
		Point:   tm,
	})

	p.tree.spans[parent].Children = append(p.tree.spans[parent].Children, id)

	return nil
}

func (p *parser) open(tid ThreadID, kind ScopeKind, start *TimingMessage) SpanID {
	stack := p.threadStacks[tid]

	var parent *SpanID

	if len(stack) > 0 {
		top := stack[len(stack)-1]
		parent = &top
	} else if kind != ScopeProcess {
		procStack := p.threadStacks[processThreadID]
		if len(procStack) > 0 {
			top := procStack[len(procStack)-1]
			parent = &top
		}
	}

	var threadNumber ThreadNumber
	if kind != ScopeProcess {
		threadNumber = p.mapper.NumberFor(tid)
	}

	id := SpanID(len(p.tree.spans))

	p.tree.spans = append(p.tree.spans, Span{
		ID:           id,
		Parent:       parent,
		Variant:      VariantScope,
		ScopeKind:    kind,
		ThreadNumber: threadNumber,
		ProbeName:    start.ProbeName,
		Start:        start,
	})

	p.threadStacks[tid] = append(stack, id)

	if parent != nil {
		p.tree.spans[*parent].Children = append(p.tree.spans[*parent].Children, id)
	}

	return id
}

func (p *parser) close(tid ThreadID, expectedKind ScopeKind, end *TimingMessage) error {
	stack := p.threadStacks[tid]
	if len(stack) == 0 {
		return fmt.Errorf("%w: thread %d probe %q", ErrPopPastEmpty, tid, end.ProbeName)
	}

	if expectedKind == ScopeProcess {
		for otherTID, other := range p.threadStacks {
			if otherTID != tid && len(other) > 0 {
				open := &p.tree.spans[other[len(other)-1]]

				return fmt.Errorf("%w: process %q closed while %s %q is open on thread %d", ErrScopeKindMismatch, end.ProbeName, open.ScopeKind, open.ProbeName, otherTID)
			}
		}
	}

	topIdx := len(stack) - 1
	id := stack[topIdx]
	span := &p.tree.spans[id]

	if span.ScopeKind != expectedKind {
		return fmt.Errorf("%w: thread %d: expected %s, found %s", ErrScopeKindMismatch, tid, expectedKind, span.ScopeKind)
	}

	if span.ProbeName != end.ProbeName {
		return fmt.Errorf("%w: thread %d: start %q end %q", ErrProbeNameMismatch, tid, span.ProbeName, end.ProbeName)
	}

	span.End = end
	p.threadStacks[tid] = stack[:topIdx]

	p.tree.probeIndex[span.ProbeName] = append(p.tree.probeIndex[span.ProbeName], id)

	return nil
}
