package document

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/ppiankov/groundcheck/internal/model"
)

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"table": true, "tr": true, "td": true, "th": true, "section": true,
	"article": true, "blockquote": true, "pre": true, "hr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

var headingElements = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// ParseHTML extracts visible text from HTML. Block elements end a line and
// every h1-h6 heading opens a section running to the next heading.
func ParseHTML(data []byte) (*model.NormalizedDocument, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	w := &textWriter{}
	w.walk(root)

	text := strings.TrimRight(w.buf.String(), "\n")
	n := utf8.RuneCountInString(text)
	for i := range w.sections {
		if i+1 < len(w.sections) {
			w.sections[i].End = w.sections[i+1].Start
		} else {
			w.sections[i].End = n
		}
		if w.sections[i].End > n {
			w.sections[i].End = n
		}
	}

	return &model.NormalizedDocument{
		Text:     text,
		Format:   model.FormatHTML,
		Sections: w.sections,
	}, nil
}

// textWriter accumulates visible text and tracks its length in code points
type textWriter struct {
	buf      strings.Builder
	n        int
	last     rune
	sections []model.SectionSpan
}

func (w *textWriter) write(s string) {
	w.buf.WriteString(s)
	w.n += utf8.RuneCountInString(s)
	w.last, _ = utf8.DecodeLastRuneInString(s)
}

func (w *textWriter) text(s string) {
	words := strings.Fields(s)
	if len(words) == 0 {
		return
	}
	if w.n > 0 && w.last != '\n' {
		w.write(" ")
	}
	w.write(strings.Join(words, " "))
}

func (w *textWriter) lineBreak() {
	if w.n > 0 && w.last != '\n' {
		w.write("\n")
	}
}

func (w *textWriter) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "iframe", "head", "template":
			return
		}
	}

	if n.Type == html.TextNode {
		w.text(n.Data)
		return
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		w.lineBreak()
	}
	if n.Type == html.ElementNode && headingElements[n.Data] {
		if heading := strings.Join(strings.Fields(textContent(n)), " "); heading != "" {
			w.sections = append(w.sections, model.SectionSpan{Start: w.n, Heading: heading})
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}

	if block {
		w.lineBreak()
	}
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
