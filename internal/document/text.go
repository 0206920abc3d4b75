package document

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/groundcheck/internal/model"
)

// maxHeadingLength bounds heading lines, in code points
const maxHeadingLength = 80

var headingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:I{1,3}|IV|VI{0,3}|IX|XI{0,2})\.\s+\S`),              // IV. Termination
	regexp.MustCompile(`^\d+(?:\.\d+)*\.\s+\S`),                                // 4. Rent, 4.1. Late fees
	regexp.MustCompile(`^(?:Section|Article|Part)\s+(?:\d+|[A-Z])[:.]?\s+\S`), // Article 4: Rent
	regexp.MustCompile(`^[A-Z]\.\s+\S`),                                        // B. Deposit
}

// ParseText normalizes plain text. Line endings become \n and each form
// feed becomes a \n that separates pages, so offsets stay one code point
// per input character.
func ParseText(raw string) *model.NormalizedDocument {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	pages := pageSpans(text)
	text = strings.ReplaceAll(text, "\f", "\n")

	return &model.NormalizedDocument{
		Text:     text,
		Format:   model.FormatTXT,
		Pages:    pages,
		Sections: sectionSpans(text),
	}
}

func pageSpans(text string) []model.PageSpan {
	if !strings.Contains(text, "\f") {
		return nil
	}

	var pages []model.PageSpan
	start, offset := 0, 0
	for _, r := range text {
		if r == '\f' {
			pages = append(pages, model.PageSpan{Start: start, End: offset, Page: len(pages) + 1})
			start = offset + 1
		}
		offset++
	}
	pages = append(pages, model.PageSpan{Start: start, End: offset, Page: len(pages) + 1})
	return pages
}

func sectionSpans(text string) []model.SectionSpan {
	var sections []model.SectionSpan
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && isHeading(trimmed) {
			lead := utf8.RuneCountInString(line) - utf8.RuneCountInString(strings.TrimLeftFunc(line, unicode.IsSpace))
			if n := len(sections); n > 0 {
				sections[n-1].End = offset + lead
			}
			sections = append(sections, model.SectionSpan{Start: offset + lead, Heading: trimmed})
		}
		offset += utf8.RuneCountInString(line) + 1
	}
	if n := len(sections); n > 0 {
		sections[n-1].End = utf8.RuneCountInString(text)
	}
	return sections
}

func isHeading(line string) bool {
	if utf8.RuneCountInString(line) > maxHeadingLength {
		return false
	}
	for _, p := range headingPatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return isAllCaps(line)
}

// isAllCaps matches short upper-case lines of at least two words
func isAllCaps(line string) bool {
	if len(strings.Fields(line)) < 2 {
		return false
	}
	hasLetter := false
	for _, r := range line {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			hasLetter = true
		}
	}
	return hasLetter
}
