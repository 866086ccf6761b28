package parser

import (
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
)

// HTMLParser converts HTML to markdown text.
type HTMLParser struct{}

// NewHTMLParser creates a new HTML parser.
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{}
}

// Parse converts the page body to markdown and extracts the <title>.
func (p *HTMLParser) Parse(data []byte) (*Parsed, error) {
	content := string(data)
	text, err := p.Convert(content)
	if err != nil {
		return nil, err
	}
	title := p.ExtractTitle(content)
	if title == "" {
		title = ExtractMarkdownTitle(text)
	}
	return &Parsed{Title: title, Sections: []Section{{Text: text}}}, nil
}

// Convert transforms HTML content into Markdown.
func (p *HTMLParser) Convert(htmlContent string) (string, error) {
	if htmlContent == "" {
		return "", nil
	}

	markdown, err := htmltomarkdown.ConvertString(htmlContent)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(markdown), nil
}

// ExtractTitle extracts the <title> content from HTML.
func (p *HTMLParser) ExtractTitle(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	var title string
	var findTitle func(*html.Node)
	findTitle = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil {
				title = n.FirstChild.Data
			}
			return
		}
		for c := n.FirstChild; c != nil && title == ""; c = c.NextSibling {
			findTitle(c)
		}
	}
	findTitle(doc)

	return strings.TrimSpace(title)
}
