package match

import (
	"context"
	"math"
	"math/bits"

	"github.com/pmezard/go-difflib/difflib"
)

// fuzzy finds the window most similar to q.
// Similarity is difflib's ratio 2*M/(len(q)+len(window)), so text inserted into or
// missing from the window keeps it below 1. Windows never begin or end on a space.
// Ties keep the earliest start, then the shortest window. A cancelled ctx yields no match.
func (m *Matcher) fuzzy(ctx context.Context, idx *Index, q []rune, claimedStart *int) (int, int, float64, bool) {
	L := len(q)
	if L == 0 || len(idx.runes) == 0 {
		return 0, 0, 0, false
	}

	tol := int(math.Ceil(float64(L) * m.tolerance))
	if tol < m.minTolerance {
		tol = m.minTolerance
	}
	if tol > L-1 {
		tol = L - 1
	}
	minLen, maxLen := L-tol, L+tol

	lo, hi := 0, len(idx.runes)
	if m.neighborhood > 0 && claimedStart != nil && *claimedStart >= 0 && *claimedStart < len(idx.orig) {
		p := idx.toNorm[*claimedStart]
		lo = max(0, p-m.neighborhood)
		hi = min(len(idx.runes), p+L+m.neighborhood)
	}
	if hi-lo < minLen {
		minLen = hi - lo
	}
	if minLen <= 0 {
		return 0, 0, 0, false
	}

	qCells := make([]string, L)
	for i, r := range q {
		qCells[i] = string(r)
	}
	sm := difflib.NewMatcherWithJunk(nil, qCells, false, nil)
	lcs := newLCSBound(q)

	best, bestStart, bestLen := 0.0, -1, 0
	for s := lo; s <= hi-minLen; s++ {
		if ctx.Err() != nil {
			return 0, 0, 0, false
		}
		if idx.runes[s] == ' ' || !lcs.has(idx.runes[s]) {
			continue
		}

		// difflib's matched count never exceeds the LCS, so the LCS ratio bounds every
		// window starting at s and difflib runs only where that bound can still win.
		lcs.reset()
		for n := 1; n <= min(maxLen, hi-s); n++ {
			last := idx.runes[s+n-1]
			lcs.push(last)
			if n < minLen || last == ' ' {
				continue
			}
			if bound := ratio(lcs.length(), L+n); bound < m.threshold || bound <= best {
				continue
			}

			sm.SetSeq1(idx.cells[s : s+n])
			if quick := sm.QuickRatio(); quick < m.threshold || quick <= best {
				continue
			}
			if sim := sm.Ratio(); sim > best {
				best, bestStart, bestLen = sim, s, n
			}
		}
	}

	if bestStart < 0 || best < m.threshold {
		return 0, 0, 0, false
	}
	start, end := idx.span(bestStart, bestStart+bestLen)
	return start, end, best, true
}

// ratio matches difflib's 2*matches/length
func ratio(matches, length int) float64 {
	if length == 0 {
		return 1
	}
	return 2 * float64(matches) / float64(length)
}

// lcsBound tracks the longest common subsequence of a pattern and a growing window,
// bit-parallel over the pattern positions.
type lcsBound struct {
	peq map[rune][]uint64
	v   []uint64
}

func newLCSBound(pattern []rune) *lcsBound {
	words := (len(pattern) + 63) / 64
	b := &lcsBound{
		peq: make(map[rune][]uint64),
		v:   make([]uint64, words),
	}
	for i, r := range pattern {
		mask, ok := b.peq[r]
		if !ok {
			mask = make([]uint64, words)
			b.peq[r] = mask
		}
		mask[i/64] |= 1 << (i % 64)
	}
	return b
}

func (b *lcsBound) has(r rune) bool {
	_, ok := b.peq[r]
	return ok
}

// reset empties the window
func (b *lcsBound) reset() {
	for i := range b.v {
		b.v[i] = ^uint64(0)
	}
}

// push appends r to the window.
// Bits past the pattern length stay set, so zero bits count LCS columns only.
func (b *lcsBound) push(r rune) {
	mask, ok := b.peq[r]
	if !ok {
		return
	}
	var carry uint64
	for i, v := range b.v {
		u := v & mask[i]
		var sum uint64
		sum, carry = bits.Add64(v, u, carry)
		b.v[i] = sum | (v &^ u)
	}
}

// length is the LCS of the pattern and the window
func (b *lcsBound) length() int {
	n := 0
	for _, v := range b.v {
		n += 64 - bits.OnesCount64(v)
	}
	return n
}
