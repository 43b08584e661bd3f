package respath

import (
	"strings"
	"unicode"
)

// MatchMode selects how a segment restricts a catalog query.
type MatchMode int

const (
	// MatchAny places no restriction.
	MatchAny MatchMode = iota
	// MatchExact compares with "=".
	MatchExact
	// MatchLike uses LIKE with the backend escape.
	MatchLike
	// MatchClient retrieves everything and filters with Match.
	MatchClient
)

// SearchPattern is a compiled segment.
type SearchPattern struct {
	Mode MatchMode
	// Value is the exact name, the LIKE pattern or the glob.
	Value  string
	Escape string
	fold   bool
}

// CompileGlob turns a segment into the backend's search syntax. Without an
// escape character a glob cannot be expressed safely in LIKE and is
// filtered client side.
func (s Scheme) CompileGlob(seg Segment) SearchPattern {
	fold := s.Case != CasePreserve
	switch seg.Kind {
	case Literal:
		return SearchPattern{Mode: MatchExact, Value: seg.Name, fold: fold}
	case Glob:
		if s.Escape == "" {
			return SearchPattern{Mode: MatchClient, Value: seg.Name, fold: fold}
		}
		return SearchPattern{Mode: MatchLike, Value: likePattern(seg.Name, s.Escape), Escape: s.Escape, fold: fold}
	}
	return SearchPattern{Mode: MatchAny}
}

func likePattern(glob, escape string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_':
			b.WriteString(escape)
			b.WriteRune(r)
		default:
			if string(r) == escape {
				b.WriteString(escape)
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Matches applies the pattern to a name client side. LIKE patterns are
// assumed to have been applied by the backend already.
func (p SearchPattern) Matches(name string) bool {
	switch p.Mode {
	case MatchExact:
		if p.fold {
			return strings.EqualFold(p.Value, name)
		}
		return p.Value == name
	case MatchClient:
		return Match(p.Value, name, p.fold)
	}
	return true
}

// Match reports whether name matches glob, where '*' matches any run of
// characters and '?' exactly one. With fold the comparison ignores case.
func Match(glob, name string, fold bool) bool {
	g, n := []rune(glob), []rune(name)
	if fold {
		lowerRunes(g)
		lowerRunes(n)
	}
	gi, ni := 0, 0
	star, mark := -1, 0
	for ni < len(n) {
		switch {
		case gi < len(g) && (g[gi] == '?' || g[gi] == n[ni]):
			gi++
			ni++
		case gi < len(g) && g[gi] == '*':
			star, mark = gi, ni
			gi++
		case star >= 0:
			// backtrack: let the last star absorb one more rune
			gi = star + 1
			mark++
			ni = mark
		default:
			return false
		}
	}
	for gi < len(g) && g[gi] == '*' {
		gi++
	}
	return gi == len(g)
}

func lowerRunes(rs []rune) {
	for i, r := range rs {
		rs[i] = unicode.ToLower(r)
	}
}
