package document

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/groundcheck/internal/model"
)

// versionIDLength is the number of hex characters kept from the content hash
const versionIDLength = 16

// Load reads a document from disk and normalizes it by extension
func Load(path string) (*model.NormalizedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return Parse(filepath.Base(path), data)
}

// Parse normalizes raw document bytes. The name selects the parser and
// provides the default document id.
//
// Supported inputs:
//   - .json: a pre-normalized document (PDF/DOCX text arrives this way)
//   - .txt, .md: plain text, form feeds separate pages
//   - .html, .htm: visible text, h1-h6 open sections
func Parse(name string, data []byte) (*model.NormalizedDocument, error) {
	ext := strings.ToLower(filepath.Ext(name))

	var (
		doc *model.NormalizedDocument
		err error
	)
	switch ext {
	case ".json":
		doc, err = parseJSON(data)
	case ".txt", ".text", ".md":
		doc = ParseText(string(data))
	case ".html", ".htm", ".xhtml":
		doc, err = ParseHTML(data)
	default:
		return nil, fmt.Errorf("%w: %s (convert to .json first)", model.ErrUnknownFormat, name)
	}
	if err != nil {
		return nil, err
	}

	if doc.DocumentID == "" {
		doc.DocumentID = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}
	if doc.VersionID == "" {
		doc.VersionID = VersionID(data)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid document %s: %w", name, err)
	}
	return doc, nil
}

// VersionID derives a stable version identifier from document content
func VersionID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:versionIDLength]
}

func parseJSON(data []byte) (*model.NormalizedDocument, error) {
	var doc model.NormalizedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode normalized document: %w", err)
	}
	if doc.Format == "" {
		doc.Format = model.FormatUnknown
	}
	return &doc, nil
}
