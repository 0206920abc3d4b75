package match

// DefaultContextChars is the context captured on each side of a span
const DefaultContextChars = 100

// SpanMatch is one occurrence of a quotation with its surrounding text
type SpanMatch struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Text    string `json:"text"`
	Context string `json:"context"`
}

// FindSpans returns every non-overlapping normalized occurrence of quote in text,
// with contextChars code points of context on each side.
func (m *Matcher) FindSpans(text, quote string, contextChars int) []SpanMatch {
	if contextChars < 0 {
		contextChars = DefaultContextChars
	}
	idx := m.Prepare(text)
	q := normalizeQuote(quote, m.opts)
	if len(q) == 0 {
		return nil
	}

	var spans []SpanMatch
	for from := 0; ; {
		p, ok := idx.find(q, from)
		if !ok {
			break
		}
		start, end := idx.span(p, p+len(q))
		cStart := max(0, start-contextChars)
		cEnd := min(len(idx.orig), end+contextChars)
		spans = append(spans, SpanMatch{
			Start:   start,
			End:     end,
			Text:    string(idx.orig[start:end]),
			Context: string(idx.orig[cStart:cEnd]),
		})
		from = p + len(q)
	}
	return spans
}
