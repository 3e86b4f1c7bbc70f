// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import "strings"

// attachProofs pairs proof environments with the statements they prove.
// Three passes in order: a proof directly following a statement, a proof
// whose title names a statement label, then nearest preceding statement.
// An artifact keeps the first proof attached to it.
func attachProofs(arts []*parsed, proofs []*proofEnv, src string) {
	byLabel := make(map[string]*parsed)
	for _, a := range arts {
		if a.art.Label != "" {
			if _, ok := byLabel[a.art.Label]; !ok {
				byLabel[a.art.Label] = a
			}
		}
	}

	used := make([]bool, len(proofs))

	// Pass 1: only whitespace between the statement's \end and the proof.
	for pi, p := range proofs {
		a := nearestBefore(arts, p.start)
		if a == nil || a.art.Proof != "" {
			continue
		}
		if strings.TrimSpace(src[a.end:p.start]) != "" {
			continue
		}
		a.art.Proof = p.body
		used[pi] = true
	}

	// Pass 2: the proof title carries a reference, as in
	// \begin{proof}[Proof of Theorem \ref{thm:main}].
	for pi, p := range proofs {
		if used[pi] || p.title == "" {
			continue
		}
		for _, m := range internalRefRe.FindAllStringSubmatch(p.title, -1) {
			for _, key := range splitKeys(m[1]) {
				a, ok := byLabel[key]
				if !ok || a.art.Proof != "" {
					continue
				}
				a.art.Proof = p.body
				used[pi] = true
			}
			if used[pi] {
				break
			}
		}
	}

	// Pass 3: nearest preceding statement still without a proof.
	for pi, p := range proofs {
		if used[pi] {
			continue
		}
		var best *parsed
		for _, a := range arts {
			if a.end >= p.start || a.art.Proof != "" {
				continue
			}
			if best == nil || a.end > best.end {
				best = a
			}
		}
		if best != nil {
			best.art.Proof = p.body
			used[pi] = true
		}
	}
}

// nearestBefore returns the artifact whose environment ends last before
// offset, or nil.
func nearestBefore(arts []*parsed, offset int) *parsed {
	var best *parsed
	for _, a := range arts {
		if a.end > offset {
			continue
		}
		if best == nil || a.end > best.end {
			best = a
		}
	}
	return best
}
