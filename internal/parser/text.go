package parser

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var errInvalidUTF8 = errors.New("content is not valid UTF-8")

// TextParser passes plain text through unchanged.
type TextParser struct{}

// Parse validates the encoding and returns a single section.
func (TextParser) Parse(data []byte) (*Parsed, error) {
	if !utf8.Valid(data) {
		return nil, errInvalidUTF8
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	return &Parsed{Sections: []Section{{Text: text}}}, nil
}

// MarkdownParser keeps markdown source as text and takes the first H1 as title.
type MarkdownParser struct{}

// Parse returns the markdown as a single section.
func (MarkdownParser) Parse(data []byte) (*Parsed, error) {
	if !utf8.Valid(data) {
		return nil, errInvalidUTF8
	}
	content := strings.TrimPrefix(string(data), "\ufeff")
	return &Parsed{
		Title:    ExtractMarkdownTitle(content),
		Sections: []Section{{Text: content}},
	}, nil
}

// ExtractMarkdownTitle extracts the first H1 heading from markdown content.
func ExtractMarkdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}
