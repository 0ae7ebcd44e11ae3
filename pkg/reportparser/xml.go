package reportparser

import (
	"encoding/xml"
	"fmt"
	"html"
	"os"
	"strings"
)

// xmlSection is the generic shape the sweep walks: <section><table>
// rows of cells</table></section>, where the first cell of each row is
// the row key and the remaining cells are keyed by the table's header
// row.
type xmlSection struct {
	Title string     `xml:"title,attr"`
	Name  string     `xml:"name,attr"`
	Table []xmlTable `xml:"table"`
}

type xmlTable struct {
	Header xmlRow   `xml:"header"`
	Rows   []xmlRow `xml:"tr"`
}

type xmlRow struct {
	Cells []string `xml:"td"`
}

// SweepXML parses path as XML and builds a nested map keyed by section
// title, then by each row's first column, with remaining columns keyed
// by the header row (§4.6). Values are HTML-unescaped and stripped.
func SweepXML(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrReportMissing
		}
		return nil, fmt.Errorf("reportparser: reading %s: %w", path, err)
	}
	return SweepXMLContent(data)
}

// SweepXMLContent is SweepXML without the filesystem read.
func SweepXMLContent(data []byte) (map[string]interface{}, error) {
	type root struct {
		Sections []xmlSection `xml:"section"`
	}
	var r root
	if err := xml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("reportparser: parsing xml: %w", err)
	}

	out := map[string]interface{}{}
	for _, sec := range r.Sections {
		key := sec.Title
		if key == "" {
			key = sec.Name
		}
		sectionMap := map[string]interface{}{}
		for _, tbl := range sec.Table {
			headers := tbl.Header.Cells
			for _, row := range tbl.Rows {
				if len(row.Cells) == 0 {
					continue
				}
				rowKey := clean(row.Cells[0])
				rowMap := map[string]interface{}{}
				for i := 1; i < len(row.Cells); i++ {
					colName := fmt.Sprintf("col%d", i)
					if i < len(headers) {
						colName = clean(headers[i])
					}
					rowMap[colName] = clean(row.Cells[i])
				}
				sectionMap[rowKey] = rowMap
			}
		}
		out[key] = sectionMap
	}
	return out, nil
}

func clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(s))
}
