package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// XLSXParser extracts cell text from Office Open XML workbooks, one section
// per worksheet with the sheet name attached.
type XLSXParser struct{}

type workbookXML struct {
	Sheets []struct {
		Name string `xml:"name,attr"`
		RID  string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sheets>sheet"`
}

type relationshipsXML struct {
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

type sharedStringsXML struct {
	Items []struct {
		Text string `xml:"t"`
		Runs []struct {
			Text string `xml:"t"`
		} `xml:"r"`
	} `xml:"si"`
}

type worksheetXML struct {
	Rows []struct {
		Cells []struct {
			Type   string `xml:"t,attr"`
			Value  string `xml:"v"`
			Inline struct {
				Text string `xml:"t"`
			} `xml:"is"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

// Parse reads every worksheet listed in the workbook.
func (XLSXParser) Parse(data []byte) (*Parsed, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open xlsx archive: %w", err)
	}

	wbData, err := readZipPart(reader, "xl/workbook.xml")
	if err != nil {
		return nil, err
	}
	var wb workbookXML
	if err := xml.Unmarshal(wbData, &wb); err != nil {
		return nil, fmt.Errorf("decode workbook.xml: %w", err)
	}

	targets := make(map[string]string)
	if relData, err := readZipPart(reader, "xl/_rels/workbook.xml.rels"); err == nil {
		var rels relationshipsXML
		if xml.Unmarshal(relData, &rels) == nil {
			for _, r := range rels.Relationships {
				targets[r.ID] = r.Target
			}
		}
	}

	var shared []string
	if ssData, err := readZipPart(reader, "xl/sharedStrings.xml"); err == nil {
		var sst sharedStringsXML
		if err := xml.Unmarshal(ssData, &sst); err != nil {
			return nil, fmt.Errorf("decode sharedStrings.xml: %w", err)
		}
		for _, item := range sst.Items {
			if item.Text != "" || len(item.Runs) == 0 {
				shared = append(shared, item.Text)
				continue
			}
			var b strings.Builder
			for _, r := range item.Runs {
				b.WriteString(r.Text)
			}
			shared = append(shared, b.String())
		}
	}

	parsed := &Parsed{}
	for i, sheet := range wb.Sheets {
		target := targets[sheet.RID]
		if target == "" {
			target = fmt.Sprintf("worksheets/sheet%d.xml", i+1)
		}
		partName := strings.TrimPrefix(target, "/")
		if !strings.HasPrefix(partName, "xl/") {
			partName = path.Join("xl", partName)
		}

		wsData, err := readZipPart(reader, partName)
		if err != nil {
			return nil, err
		}
		text, err := worksheetText(wsData, shared)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheet.Name, err)
		}
		parsed.Sections = append(parsed.Sections, Section{Text: text, Sheet: sheet.Name})
	}
	return parsed, nil
}

// worksheetText renders rows as tab-separated lines.
func worksheetText(data []byte, shared []string) (string, error) {
	var ws worksheetXML
	if err := xml.Unmarshal(data, &ws); err != nil {
		return "", fmt.Errorf("decode worksheet: %w", err)
	}

	var lines []string
	for _, row := range ws.Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, c := range row.Cells {
			switch c.Type {
			case "s":
				idx, err := strconv.Atoi(strings.TrimSpace(c.Value))
				if err != nil || idx < 0 || idx >= len(shared) {
					return "", fmt.Errorf("bad shared string index %q", c.Value)
				}
				cells = append(cells, shared[idx])
			case "inlineStr":
				cells = append(cells, c.Inline.Text)
			default:
				cells = append(cells, c.Value)
			}
		}
		line := strings.TrimRight(strings.Join(cells, "\t"), "\t")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
