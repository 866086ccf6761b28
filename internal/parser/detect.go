package parser

import (
	"bytes"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Format names.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatDOCX     = "docx"
	FormatXLSX     = "xlsx"
	FormatUnknown  = ""
)

var extensionFormats = map[string]string{
	".txt":      FormatText,
	".text":     FormatText,
	".log":      FormatText,
	".csv":      FormatText,
	".tsv":      FormatText,
	".json":     FormatText,
	".yaml":     FormatText,
	".yml":      FormatText,
	".xml":      FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".docx":     FormatDOCX,
	".xlsx":     FormatXLSX,
}

// binaryExtensions are known formats with no parser. They are rejected
// without sniffing so a PDF is never mistaken for text.
var binaryExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".xls": true, ".ppt": true, ".pptx": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".zip": true,
}

// Extension returns the lowercase extension of a path or URL.
func Extension(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 && strings.Contains(name, "://") {
		name = name[:i]
	}
	return strings.ToLower(path.Ext(name))
}

// IsMarkdownContentType checks if the Content-Type header indicates markdown.
func IsMarkdownContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/markdown") ||
		strings.HasPrefix(ct, "text/x-markdown")
}

// IsHTMLContentType checks if the Content-Type header indicates HTML.
func IsHTMLContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/html") ||
		strings.HasPrefix(ct, "application/xhtml")
}

// IsMarkdownContent uses heuristics to detect if content is markdown.
func IsMarkdownContent(content string) bool {
	if content == "" {
		return false
	}

	trimmed := strings.TrimSpace(content)
	if LooksLikeHTML(trimmed) {
		return false
	}
	return hasMarkdownPatterns(trimmed)
}

// LooksLikeHTML checks if content appears to be an HTML document.
func LooksLikeHTML(content string) bool {
	lower := strings.ToLower(strings.TrimSpace(content))
	return strings.HasPrefix(lower, "<!doctype") ||
		strings.HasPrefix(lower, "<html") ||
		strings.HasPrefix(lower, "<head") ||
		strings.HasPrefix(lower, "<body")
}

var (
	headerPattern = regexp.MustCompile(`^#{1,6}\s+\S`)
	listPattern   = regexp.MustCompile(`(?m)^[\-\*]\s+\S`)
	linkPattern   = regexp.MustCompile(`\[.+?\]\(.+?\)`)
)

func hasMarkdownPatterns(content string) bool {
	return headerPattern.MatchString(content) ||
		listPattern.MatchString(content) ||
		linkPattern.MatchString(content)
}

var zipMagic = []byte("PK\x03\x04")

// Detect determines the format of a document. Checks in order: extension,
// Content-Type, then content heuristics.
func Detect(name, contentType string, data []byte) string {
	ext := Extension(name)
	if f, ok := extensionFormats[ext]; ok {
		return f
	}
	if binaryExtensions[ext] {
		return FormatUnknown
	}

	switch {
	case IsMarkdownContentType(contentType):
		return FormatMarkdown
	case IsHTMLContentType(contentType):
		return FormatHTML
	}

	if bytes.HasPrefix(data, zipMagic) || !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return FormatUnknown
	}
	content := string(data)
	if LooksLikeHTML(content) {
		return FormatHTML
	}
	if IsMarkdownContent(content) {
		return FormatMarkdown
	}
	return FormatText
}
