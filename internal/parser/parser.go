// Package parser extracts normalized UTF-8 text from raw document bytes.
//
// Parsers are selected by format, which Detect derives from the file name,
// an optional Content-Type, and finally the bytes themselves. A file no parser
// understands yields ErrUnsupportedFormat wrapped in a ParseError so batch
// callers can skip it and keep going.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnsupportedFormat reports a file type no parser handles.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ErrNoText reports a document that parsed but contained no text.
var ErrNoText = errors.New("no extractable text")

// ParseError wraps a failure to extract text from one document.
type ParseError struct {
	Path   string
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("parse %s (%s): %v", e.Path, e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Section is a contiguous block of text with optional structural metadata.
type Section struct {
	Text  string
	Sheet string
	Page  int
}

// Parsed is the output of a parser.
type Parsed struct {
	Format   string
	Title    string
	Sections []Section
}

// Text joins every section with blank lines.
func (p *Parsed) Text() string {
	parts := make([]string, 0, len(p.Sections))
	for _, s := range p.Sections {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Parser converts raw bytes of one format into sections of text.
type Parser interface {
	Parse(data []byte) (*Parsed, error)
}

// Registry maps format names to parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns a registry with every built-in parser.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	r.Register(FormatText, TextParser{})
	r.Register(FormatMarkdown, MarkdownParser{})
	r.Register(FormatHTML, NewHTMLParser())
	r.Register(FormatDOCX, DOCXParser{})
	r.Register(FormatXLSX, XLSXParser{})
	return r
}

// Register adds or replaces the parser for a format.
func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}

// Parse detects the format of data and runs the matching parser. Section text
// is normalized and empty sections are dropped.
func (r *Registry) Parse(name, contentType string, data []byte) (*Parsed, error) {
	format := Detect(name, contentType, data)
	p, ok := r.parsers[format]
	if !ok {
		return nil, &ParseError{Path: name, Format: format, Err: ErrUnsupportedFormat}
	}

	parsed, err := p.Parse(data)
	if err != nil {
		return nil, &ParseError{Path: name, Format: format, Err: err}
	}
	parsed.Format = format

	sections := parsed.Sections[:0]
	for _, s := range parsed.Sections {
		s.Text = Normalize(s.Text)
		if s.Text != "" {
			sections = append(sections, s)
		}
	}
	parsed.Sections = sections
	if len(sections) == 0 {
		return nil, &ParseError{Path: name, Format: format, Err: ErrNoText}
	}
	return parsed, nil
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Normalize canonicalizes line endings and whitespace so that identical
// content always produces identical chunk boundaries.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ToValidUTF8(text, "\ufffd")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
