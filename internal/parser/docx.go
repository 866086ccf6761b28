package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

var errMissingPart = errors.New("missing document part")

// DOCXParser extracts paragraph text from Office Open XML documents.
type DOCXParser struct{}

// Parse reads word/document.xml and the optional docProps/core.xml title.
func (DOCXParser) Parse(data []byte) (*Parsed, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx archive: %w", err)
	}

	body, err := readZipPart(reader, "word/document.xml")
	if err != nil {
		return nil, err
	}
	text, err := parseDocumentXML(body)
	if err != nil {
		return nil, err
	}

	var title string
	if core, err := readZipPart(reader, "docProps/core.xml"); err == nil {
		var props coreXML
		if xml.Unmarshal(core, &props) == nil {
			title = strings.TrimSpace(props.Title)
		}
	}

	return &Parsed{Title: title, Sections: []Section{{Text: text}}}, nil
}

// readZipPart returns the bytes of one archive member.
func readZipPart(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		content, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return content, nil
	}
	return nil, fmt.Errorf("%w: %s", errMissingPart, name)
}

// documentXML represents the structure of word/document.xml.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

type coreXML struct {
	Title string `xml:"title"`
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("decode document.xml: %w", err)
	}

	var result strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			result.WriteString("\n")
		}
		for _, r := range para.Runs {
			for _, t := range r.Text {
				result.WriteString(t.Content)
			}
		}
	}
	return result.String(), nil
}
