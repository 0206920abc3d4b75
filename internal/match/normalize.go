package match

import (
	"crypto/sha256"
	"encoding/hex"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Options control normalization. Both sides of every comparison use the same options.
type Options struct {
	FoldAccents bool
}

func (o Options) key() string {
	if o.FoldAccents {
		return "fold"
	}
	return "plain"
}

// Index is a normalized view of a document with a mapping back to original offsets.
// It is immutable after Prepare and safe for concurrent use.
type Index struct {
	hash      string
	opts      Options
	orig      []rune
	runes     []rune   // normalized, one per kept original rune
	text      string   // string(runes)
	cells     []string // runes as single-character strings for difflib
	origStart []int    // original index of each normalized rune
	toNorm    []int    // normalized index of each original rune, plus len(runes) at the end
}

// Prepare normalizes text: runes are lower-cased (and optionally stripped of accents)
// one for one, and whitespace runs collapse to a single space.
func Prepare(text string, opts Options) *Index {
	return prepare(text, hashText(text), opts)
}

func prepare(text, hash string, opts Options) *Index {
	orig := []rune(text)
	idx := &Index{
		hash:      hash,
		opts:      opts,
		orig:      orig,
		runes:     make([]rune, 0, len(orig)),
		origStart: make([]int, 0, len(orig)),
		toNorm:    make([]int, len(orig)+1),
	}

	inSpace := false
	for i, r := range orig {
		if unicode.IsSpace(r) {
			if inSpace {
				idx.toNorm[i] = len(idx.runes) - 1
				continue
			}
			inSpace = true
			r = ' '
		} else {
			inSpace = false
			r = foldRune(r, opts)
		}
		idx.toNorm[i] = len(idx.runes)
		idx.runes = append(idx.runes, r)
		idx.origStart = append(idx.origStart, i)
	}
	idx.toNorm[len(orig)] = len(idx.runes)
	idx.text = string(idx.runes)

	idx.cells = make([]string, len(idx.runes))
	for i, r := range idx.runes {
		idx.cells[i] = string(r)
	}
	return idx
}

// Hash returns the sha256 of the original text
func (idx *Index) Hash() string {
	return idx.hash
}

// Len returns the original length in code points
func (idx *Index) Len() int {
	return len(idx.orig)
}

// Options returns the normalization options the index was built with
func (idx *Index) Options() Options {
	return idx.opts
}

// span converts a normalized range [s, e) to original offsets
func (idx *Index) span(s, e int) (int, int) {
	return idx.origStart[s], idx.origStart[e-1] + 1
}

// runeIndex converts a byte offset in the normalized text to a rune index
func (idx *Index) runeIndex(byteOffset int) int {
	return utf8.RuneCountInString(idx.text[:byteOffset])
}

// normalizeQuote applies document normalization and trims the result
func normalizeQuote(quote string, opts Options) []rune {
	out := make([]rune, 0, len(quote))
	inSpace := false
	for _, r := range quote {
		if unicode.IsSpace(r) {
			if inSpace {
				continue
			}
			inSpace = true
			out = append(out, ' ')
			continue
		}
		inSpace = false
		out = append(out, foldRune(r, opts))
	}
	for len(out) > 0 && out[0] == ' ' {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == ' ' {
		out = out[:len(out)-1]
	}
	return out
}

func foldRune(r rune, opts Options) rune {
	r = unicode.ToLower(r)
	if !opts.FoldAccents || r < utf8.RuneSelf {
		return r
	}
	for _, d := range norm.NFD.String(string(r)) {
		if !unicode.Is(unicode.Mn, d) {
			return d
		}
	}
	return r
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// NormalizeText returns the normalized form used for comparison
func NormalizeText(s string, opts Options) string {
	return string(normalizeQuote(s, opts))
}
