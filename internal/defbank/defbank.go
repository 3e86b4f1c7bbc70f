// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package defbank holds a paper's term definitions: canonical forms, aliases,
// and the compositional dependencies between terms. One bank is created per
// paper and shared by the enhancement phases, so every operation is
// serialized behind a single mutex.
// Implements: prd004-definition-bank (R1-R5).
package defbank

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pdiddy/arxitex/pkg/types"
)

// shortTermLimit is the canonical length below which case is preserved.
// Short terms are usually notation ("G", "cF", "Hom") where case matters.
const shortTermLimit = 5

// trailingParenRe matches a trailing parenthetical note: "monoid (algebra)".
var trailingParenRe = regexp.MustCompile(`\s*\([^()]*\)\s*$`)

// Canonical normalizes a term for use as a bank key: trim, drop a trailing
// parenthetical note, peel matched math/group delimiters, drop a leading
// backslash, and lowercase unless the core is shorter than shortTermLimit.
// The function is idempotent: Canonical(Canonical(t)) == Canonical(t).
func Canonical(term string) string {
	s := strings.TrimSpace(term)
	for {
		trimmed := trailingParenRe.ReplaceAllString(s, "")
		if trimmed == s {
			break
		}
		s = strings.TrimSpace(trimmed)
	}
	s = peelDelimiters(s)
	s = strings.TrimPrefix(s, `\`)
	if utf8.RuneCountInString(s) < shortTermLimit {
		return s
	}
	return strings.ToLower(s)
}

// peelDelimiters removes matched $...$, {...} and \(...\) wrappers until
// none remain. Only whole-term wrappers are peeled; "$n$-fold cover" keeps
// its inline math.
func peelDelimiters(s string) string {
	for {
		switch {
		case len(s) >= 2 && s[0] == '$' && s[len(s)-1] == '$':
			s = strings.TrimSpace(s[1 : len(s)-1])
		case len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}':
			s = strings.TrimSpace(s[1 : len(s)-1])
		case len(s) >= 4 && strings.HasPrefix(s, `\(`) && strings.HasSuffix(s, `\)`):
			s = strings.TrimSpace(s[2 : len(s)-2])
		default:
			return s
		}
	}
}

// SearchForm lowers and collapses whitespace so phrase containment ignores
// case and spacing differences.
func SearchForm(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ContainsPhrase reports whether phrase occurs in text delimited by
// whitespace (or the text boundary) on both sides. Both arguments must
// already be in search form.
func ContainsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// Bank is a concurrency-safe store of definitions for one paper.
type Bank struct {
	mu      sync.Mutex
	defs    map[string]*types.Definition // canonical term -> definition
	aliases map[string]string            // canonical alias -> canonical term
}

// New returns an empty bank.
func New() *Bank {
	return &Bank{
		defs:    make(map[string]*types.Definition),
		aliases: make(map[string]string),
	}
}

// Register stores d under the canonical form of its term, overwriting any
// previous entry, and maps each alias to the new key. The stored definition
// keeps the original spelling in TermOriginal.
func (b *Bank) Register(d types.Definition) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := Canonical(d.Term)
	if key == "" {
		return
	}
	if d.TermOriginal == "" {
		d.TermOriginal = d.Term
	}
	d.Term = key
	b.defs[key] = &d
	for _, alias := range d.Aliases {
		if a := Canonical(alias); a != "" && a != key {
			b.aliases[a] = key
		}
	}
}

// Find returns the definition for term, resolving aliases.
func (b *Bank) Find(term string) (types.Definition, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.lookup(term)
	if d == nil {
		return types.Definition{}, false
	}
	return *d, true
}

// lookup resolves a term to its definition without copying. Callers hold mu.
func (b *Bank) lookup(term string) *types.Definition {
	key := Canonical(term)
	if d, ok := b.defs[key]; ok {
		return d
	}
	if primary, ok := b.aliases[key]; ok {
		return b.defs[primary]
	}
	return nil
}

// FindMany resolves a batch of terms, deduplicating by canonical key. Terms
// with no definition are dropped; input order is preserved otherwise.
func (b *Bank) FindMany(terms []string) []types.Definition {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]bool, len(terms))
	var out []types.Definition
	for _, t := range terms {
		d := b.lookup(t)
		if d == nil || seen[d.Term] {
			continue
		}
		seen[d.Term] = true
		out = append(out, *d)
	}
	return out
}

// FindBestBaseDefinition finds the most specific pre-existing definition a
// compound term builds on. Two passes, first hit wins:
//
//  1. Exact sub-phrase: the longest proper token suffix of the term that is
//     itself a known definition ("approximate union closed" -> "union closed").
//  2. Parameterized match: a known definition of 2..len(term) tokens that
//     differs from some window of the term by exactly one token, preferring
//     the longest such candidate.
func (b *Bank) FindBestBaseDefinition(term string) (types.Definition, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tokens := strings.Fields(Canonical(term))
	if len(tokens) == 0 {
		return types.Definition{}, false
	}

	// Pass 1: suffixes, longest first, excluding the full term.
	for start := 1; start < len(tokens); start++ {
		suffix := strings.Join(tokens[start:], " ")
		if d := b.lookup(suffix); d != nil {
			return *d, true
		}
	}

	// Pass 2: one-token-differs window match.
	var best *types.Definition
	bestLen := 0
	for _, key := range b.sortedKeys() {
		d := b.defs[key]
		defTokens := strings.Fields(d.Term)
		n := len(defTokens)
		if n < 2 || n > len(tokens) || n <= bestLen {
			continue
		}
		if windowDiffersByOne(tokens, defTokens) {
			best = d
			bestLen = n
		}
	}
	if best == nil {
		return types.Definition{}, false
	}
	return *best, true
}

// windowDiffersByOne reports whether some length-len(sub) window of tokens
// differs from sub in exactly one position.
func windowDiffersByOne(tokens, sub []string) bool {
	for start := 0; start+len(sub) <= len(tokens); start++ {
		diffs := 0
		for i := range sub {
			if tokens[start+i] != sub[i] {
				diffs++
				if diffs > 1 {
					break
				}
			}
		}
		if diffs == 1 {
			return true
		}
	}
	return false
}

// MergeRedundancies collapses definitions that share the exact same text.
// Within each group the entry with the shortest term string survives; every
// other term, and its aliases, become aliases of the survivor. The alias map
// is rebuilt from scratch afterwards.
func (b *Bank) MergeRedundancies() {
	b.mu.Lock()
	defer b.mu.Unlock()

	groups := make(map[string][]string) // definition text -> canonical terms
	for key, d := range b.defs {
		groups[d.Text] = append(groups[d.Text], key)
	}

	for _, keys := range groups {
		if len(keys) < 2 {
			continue
		}
		sort.Slice(keys, func(i, j int) bool {
			if len(keys[i]) != len(keys[j]) {
				return len(keys[i]) < len(keys[j])
			}
			return keys[i] < keys[j]
		})
		primary := b.defs[keys[0]]
		folded := make(map[string]bool)
		for _, a := range primary.Aliases {
			folded[Canonical(a)] = true
		}
		for _, key := range keys[1:] {
			dup := b.defs[key]
			folded[key] = true
			for _, a := range dup.Aliases {
				folded[Canonical(a)] = true
			}
			delete(b.defs, key)
		}
		delete(folded, primary.Term)
		primary.Aliases = sortedSet(folded)
	}

	b.aliases = make(map[string]string)
	for key, d := range b.defs {
		for _, a := range d.Aliases {
			if c := Canonical(a); c != "" && c != key {
				b.aliases[c] = key
			}
		}
	}
}

// ResolveInternalDependencies scans every definition's text for mentions of
// other defined terms and records them as dependencies. Matching is by
// whole-phrase containment on search forms, so "closed" inside "enclosed"
// does not count.
func (b *Bank) ResolveInternalDependencies() {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := b.sortedKeys()
	for _, dk := range keys {
		d := b.defs[dk]
		text := SearchForm(d.Text)
		have := make(map[string]bool, len(d.Dependencies))
		for _, dep := range d.Dependencies {
			have[dep] = true
		}
		for _, ek := range keys {
			if ek == dk || have[ek] {
				continue
			}
			if ContainsPhrase(text, SearchForm(ek)) {
				d.Dependencies = append(d.Dependencies, ek)
				have[ek] = true
			}
		}
	}
}

// Len returns the number of definitions (aliases not counted).
func (b *Bank) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.defs)
}

// Terms returns the canonical term keys in sorted order.
func (b *Bank) Terms() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sortedKeys()
}

// Snapshot returns a stable copy of the bank for persistence and export:
// definitions sorted by term, plus the alias fold map.
func (b *Bank) Snapshot() types.DefinitionBankExport {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := types.DefinitionBankExport{}
	for _, key := range b.sortedKeys() {
		d := *b.defs[key]
		d.Aliases = append([]string(nil), d.Aliases...)
		d.Dependencies = append([]string(nil), d.Dependencies...)
		out.Definitions = append(out.Definitions, d)
	}
	if len(b.aliases) > 0 {
		out.Aliases = make(map[string]string, len(b.aliases))
		for a, t := range b.aliases {
			out.Aliases[a] = t
		}
	}
	return out
}

// sortedKeys returns the definition keys in sorted order. Callers hold mu.
func (b *Bank) sortedKeys() []string {
	keys := make([]string, 0, len(b.defs))
	for k := range b.defs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSet(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
