package parser

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestNormalize(t *testing.T) {
	in := "  line one  \r\nline two\t\r\n\r\n\r\n\r\nline three\x00\n\n"
	assert.Equal(t, "line one\nline two\n\nline three", Normalize(in))
}

func TestRegistry_ParseText(t *testing.T) {
	r := NewRegistry()

	parsed, err := r.Parse("/docs/notes.txt", "", []byte("\ufeffFirst line\r\nSecond line\n"))
	require.NoError(t, err)
	assert.Equal(t, FormatText, parsed.Format)
	require.Len(t, parsed.Sections, 1)
	assert.Equal(t, "First line\nSecond line", parsed.Sections[0].Text)
}

func TestRegistry_ParseMarkdownTitle(t *testing.T) {
	parsed, err := NewRegistry().Parse("/docs/guide.md", "", []byte("intro\n# Evidence Guide\n\nBody text."))
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, parsed.Format)
	assert.Equal(t, "Evidence Guide", parsed.Title)
}

func TestRegistry_Unsupported(t *testing.T) {
	_, err := NewRegistry().Parse("/docs/report.pdf", "", []byte("%PDF-1.7 binary"))

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "/docs/report.pdf", perr.Path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRegistry_InvalidUTF8(t *testing.T) {
	_, err := NewRegistry().Parse("/docs/broken.txt", "", []byte{0xff, 0xfe, 0xfd})

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, FormatText, perr.Format)
}

func TestRegistry_EmptyText(t *testing.T) {
	_, err := NewRegistry().Parse("/docs/blank.txt", "", []byte(" \n\n \t "))
	assert.ErrorIs(t, err, ErrNoText)
}

func TestRegistry_CorruptDOCX(t *testing.T) {
	_, err := NewRegistry().Parse("/docs/policy.docx", "", []byte("not a zip archive"))

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, FormatDOCX, perr.Format)
}

func TestDOCXParser(t *testing.T) {
	data := buildZip(t, map[string]string{
		"word/document.xml": `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Model cards are </w:t></w:r><w:r><w:t>reviewed quarterly.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Owners sign off.</w:t></w:r></w:p>
  </w:body>
</w:document>`,
		"docProps/core.xml": `<?xml version="1.0"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <dc:title>Review Policy</dc:title>
</cp:coreProperties>`,
	})

	parsed, err := NewRegistry().Parse("/docs/policy.docx", "", data)
	require.NoError(t, err)
	assert.Equal(t, "Review Policy", parsed.Title)
	assert.Equal(t, "Model cards are reviewed quarterly.\nOwners sign off.", parsed.Text())
}

func TestXLSXParser(t *testing.T) {
	data := buildZip(t, map[string]string{
		"xl/workbook.xml": `<?xml version="1.0"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
  <sheets>
    <sheet name="KPIs" sheetId="1" r:id="rId1"/>
    <sheet name="Notes" sheetId="2" r:id="rId2"/>
  </sheets>
</workbook>`,
		"xl/_rels/workbook.xml.rels": `<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Target="worksheets/sheet1.xml"/>
  <Relationship Id="rId2" Target="worksheets/sheet2.xml"/>
</Relationships>`,
		"xl/sharedStrings.xml": `<?xml version="1.0"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <si><t>KPI</t></si>
  <si><t>Score</t></si>
  <si><r><t>Drift </t></r><r><t>coverage</t></r></si>
</sst>`,
		"xl/worksheets/sheet1.xml": `<?xml version="1.0"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <sheetData>
    <row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row>
    <row r="2"><c r="A2" t="s"><v>2</v></c><c r="B2"><v>87.5</v></c></row>
  </sheetData>
</worksheet>`,
		"xl/worksheets/sheet2.xml": `<?xml version="1.0"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <sheetData>
    <row r="1"><c r="A1" t="inlineStr"><is><t>Reviewed by audit</t></is></c></row>
  </sheetData>
</worksheet>`,
	})

	parsed, err := NewRegistry().Parse("/docs/kpis.xlsx", "", data)
	require.NoError(t, err)
	require.Len(t, parsed.Sections, 2)

	assert.Equal(t, "KPIs", parsed.Sections[0].Sheet)
	assert.Equal(t, "KPI\tScore\nDrift coverage\t87.5", parsed.Sections[0].Text)
	assert.Equal(t, "Notes", parsed.Sections[1].Sheet)
	assert.Equal(t, "Reviewed by audit", parsed.Sections[1].Text)
}
