package logtree

import (
	"fmt"
	"strconv"
	"strings"
)

// PathStringOptions configures PathString's rendering (spec.md §4.7).
type PathStringOptions struct {
	// NormalSeparator joins ancestor segments root-to-leaf.
	NormalSeparator string
	// ReverseSeparator joins ancestor segments leaf-to-root, used when
	// Reverse is true.
	ReverseSeparator string
	// ShowKindMarkers prefixes each Scope segment with "P:" or "T:" for
	// Process/Thread kinds (plain Scope kinds are never marked).
	ShowKindMarkers bool
	// ShowThreadNumber appends "#<n>" to Thread and Scope segments.
	ShowThreadNumber bool
	// Reverse renders the path leaf-to-root instead of root-to-leaf.
	Reverse bool
}

// segment renders one Scope span's own label, honoring ShowKindMarkers and
// ShowThreadNumber.
func (t *Tree) segment(id SpanID, opts PathStringOptions) string {
	span := &t.spans[id]

	var b strings.Builder

	if opts.ShowKindMarkers {
		switch span.ScopeKind {
		case ScopeProcess:
			b.WriteString("P:")
		case ScopeThread:
			b.WriteString("T:")
		case ScopeScope:
			// No marker for plain scopes.
		}
	}

	b.WriteString(span.ProbeName)

	if opts.ShowThreadNumber && span.ScopeKind != ScopeProcess {
		b.WriteString("#")
		b.WriteString(strconv.FormatUint(uint64(span.ThreadNumber), 10))
	}

	return b.String()
}

// ancestryToRoot returns id's chain of Scope ancestors, innermost (id)
// first, root last. Non-Scope spans (KeyValue, Point) use their Parent to
// seed the walk but do not themselves appear in the chain.
func (t *Tree) ancestryToRoot(id SpanID) []SpanID {
	chain := make([]SpanID, 0, 4)

	current := &t.spans[id]
	if current.Variant == VariantScope {
		chain = append(chain, id)
	}

	cursor := current.Parent

	for cursor != nil {
		chain = append(chain, *cursor)
		cursor = t.spans[*cursor].Parent
	}

	return chain
}

// PathString renders the path from the tree root down to id into a
// (prefix, main) pair: main is id's own segment (or, for a non-Scope span,
// a literal key=value / point marker), and prefix is everything above it
// joined per opts.
func (t *Tree) PathString(id SpanID, opts PathStringOptions) (prefix string, main string) {
	span := &t.spans[id]

	switch span.Variant {
	case VariantKeyValue:
		main = fmt.Sprintf("%s=%s", span.Key, span.Value)
	case VariantPoint:
		if span.Point != nil {
			main = span.Point.ProbeName
		}
	default:
		main = t.segment(id, opts)
	}

	chain := t.ancestryToRoot(id)
	// Drop id itself from the ancestor chain when it is a Scope (it is
	// already rendered as main); non-Scope spans are never in the chain.
	if span.Variant == VariantScope && len(chain) > 0 {
		chain = chain[1:]
	}

	segments := make([]string, len(chain))
	for i, ancestorID := range chain {
		segments[i] = t.segment(ancestorID, opts)
	}

	if opts.Reverse {
		sep := opts.ReverseSeparator
		if sep == "" {
			sep = " < "
		}

		prefix = strings.Join(segments, sep)

		return prefix, main
	}

	sep := opts.NormalSeparator
	if sep == "" {
		sep = "/"
	}

	reversed := make([]string, len(segments))
	for i, s := range segments {
		reversed[len(segments)-1-i] = s
	}

	prefix = strings.Join(reversed, sep)

	return prefix, main
}
