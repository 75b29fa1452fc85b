package extract

import (
	"covid19au/internal/snapshot"
	"covid19au/lib/htmlutil"
	"covid19au/lib/textutil"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// FindTable locates the table of a source in a rendered page, first by its
// table number then by its header markers.
func FindTable(doc *goquery.Document, source Source) (*goquery.Selection, bool) {
	if source.TableNumber > 0 {
		sel := doc.Find(fmt.Sprintf(`table[data-tablenumber="%d"]`, source.TableNumber)).First()
		if sel.Length() > 0 {
			return sel, true
		}
	}
	if len(source.HeaderMarkers) == 0 {
		return nil, false
	}

	markers := make([]string, len(source.HeaderMarkers))
	for i, m := range source.HeaderMarkers {
		markers[i] = textutil.NormalizeName(m)
	}

	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		header, _ := splitRows(table)
		labels := cellTexts(header)
		if !matchesAll(labels, markers) {
			return true
		}
		found = table
		return false
	})
	return found, found != nil
}

func matchesAll(labels []string, markers []string) bool {
	for _, m := range markers {
		matched := false
		for _, label := range labels {
			if textutil.MatchName(label, []string{m}) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// splitRows returns the header row and the body rows of a table. Without a
// thead the first body row is the header.
func splitRows(table *goquery.Selection) (*goquery.Selection, []*goquery.Selection) {
	header := table.ChildrenFiltered("thead").ChildrenFiltered("tr").First()

	var body []*goquery.Selection
	table.ChildrenFiltered("tbody").ChildrenFiltered("tr").Each(func(_ int, tr *goquery.Selection) {
		body = append(body, tr)
	})

	if header.Length() == 0 && len(body) > 0 {
		header = body[0]
		body = body[1:]
	}
	return header, body
}

func cellTexts(tr *goquery.Selection) []string {
	var texts []string
	tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
		var text string
		for _, n := range cell.Nodes {
			text += htmlutil.GetText(n)
		}
		texts = append(texts, htmlutil.CleanText(text))
	})
	return texts
}

// MarkupTable pairs the header labels of a rendered table with the text of
// each body row positionally. Rows shorter than the header are padded with
// missing cells and cells beyond the header are dropped.
func MarkupTable(name snapshot.TableName, table *goquery.Selection) snapshot.RawTable {
	out := snapshot.RawTable{Name: name}
	if table == nil || table.Length() == 0 {
		return out
	}

	headerRow, body := splitRows(table)
	header := cellTexts(headerRow)
	for _, tr := range body {
		texts := cellTexts(tr)
		row := make(snapshot.Row, 0, len(header))
		for i, label := range header {
			cell := snapshot.MissingCell()
			if i < len(texts) {
				cell = snapshot.TextCell(texts[i])
			}
			row = append(row, snapshot.Field{Label: label, Cell: cell})
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}
