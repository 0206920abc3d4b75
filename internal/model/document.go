package model

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// Format is the declared source format of a normalized document
type Format string

const (
	FormatTXT     Format = "TXT"
	FormatHTML    Format = "HTML"
	FormatDOCX    Format = "DOCX"
	FormatPDF     Format = "PDF"
	FormatUnknown Format = "UNKNOWN"
)

var mimeFormats = map[string]Format{
	"text/plain":            FormatTXT,
	"text/html":             FormatHTML,
	"application/xhtml+xml": FormatHTML,
	"application/pdf":       FormatPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": FormatDOCX,
}

// ParseFormat resolves a format name, file extension or MIME type.
// Unrecognized input yields FormatUnknown together with ErrUnknownFormat.
func ParseFormat(s string) (Format, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if i := strings.Index(v, ";"); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	if f, ok := mimeFormats[v]; ok {
		return f, nil
	}
	if strings.Contains(v, "/") && !strings.Contains(filepath.Base(v), ".") {
		return FormatUnknown, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
	if ext := filepath.Ext(v); ext != "" {
		v = ext
	}
	switch strings.TrimPrefix(v, ".") {
	case "txt", "text", "md":
		return FormatTXT, nil
	case "html", "htm":
		return FormatHTML, nil
	case "docx":
		return FormatDOCX, nil
	case "pdf":
		return FormatPDF, nil
	case "unknown":
		return FormatUnknown, nil
	}
	return FormatUnknown, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// PageSpan maps a character range to a page number
type PageSpan struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
	Page  int `json:"page" yaml:"page"`
}

// SectionSpan maps a character range to a section heading
type SectionSpan struct {
	Start   int    `json:"start" yaml:"start"`
	End     int    `json:"end" yaml:"end"`
	Heading string `json:"heading" yaml:"heading"`
}

// NormalizedDocument is the parser output consumed by the verifier.
// Offsets in Pages and Sections are code point indices into Text.
type NormalizedDocument struct {
	DocumentID string        `json:"document_id"`
	VersionID  string        `json:"version_id"`
	Text       string        `json:"text"`
	Format     Format        `json:"format"`
	Pages      []PageSpan    `json:"pages,omitempty"`    // Ordered by Start
	Sections   []SectionSpan `json:"sections,omitempty"` // Ordered by Start
}

// Len returns the document length in code points
func (d *NormalizedDocument) Len() int {
	return utf8.RuneCountInString(d.Text)
}

// PageAt returns the page containing offset
func (d *NormalizedDocument) PageAt(offset int) (int, bool) {
	i := sort.Search(len(d.Pages), func(i int) bool { return d.Pages[i].End > offset })
	if i < len(d.Pages) && d.Pages[i].Start <= offset {
		return d.Pages[i].Page, true
	}
	return 0, false
}

// SectionAt returns the heading of the section containing offset
func (d *NormalizedDocument) SectionAt(offset int) (string, bool) {
	i := sort.Search(len(d.Sections), func(i int) bool { return d.Sections[i].End > offset })
	if i < len(d.Sections) && d.Sections[i].Start <= offset {
		return d.Sections[i].Heading, true
	}
	return "", false
}

// Validate checks that the page and section maps are ordered and in bounds
func (d *NormalizedDocument) Validate() error {
	n := d.Len()
	prev := 0
	for i, p := range d.Pages {
		if p.Start < prev || p.End < p.Start || p.End > n {
			return fmt.Errorf("page span %d [%d,%d) out of order or bounds", i, p.Start, p.End)
		}
		prev = p.End
	}
	prev = 0
	for i, s := range d.Sections {
		if s.Start < prev || s.End < s.Start || s.End > n {
			return fmt.Errorf("section span %d [%d,%d) out of order or bounds", i, s.Start, s.End)
		}
		prev = s.End
	}
	return nil
}
