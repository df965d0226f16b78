package extract

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/fetchkit/browsecore/models"
)

// extractTables walks every <table> in doc and converts it to
// {headers[], rows[][], caption?}, per spec §4.7. The header row is
// whichever of the first row contains <th> cells, else the first row is
// treated as the header. Tables with no surviving rows are dropped.
func extractTables(doc *html.Node) []models.TableData {
	var out []models.TableData
	for _, tbl := range findAll(doc, "table") {
		rows := tableRows(tbl)
		if len(rows) == 0 {
			continue
		}
		headers := rows[0]
		body := rows[1:]
		if len(body) == 0 && len(headers) == 0 {
			continue
		}
		out = append(out, models.TableData{
			Headers: headers,
			Rows:    body,
			Caption: tableCaption(tbl),
		})
	}
	return out
}

func tableRows(tbl *html.Node) [][]string {
	var rows [][]string
	for _, tr := range findAll(tbl, "tr") {
		var cells []string
		hasHeader := false
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.Data == "th" {
				hasHeader = true
			}
			if c.Data == "th" || c.Data == "td" {
				cells = append(cells, strings.TrimSpace(textContent(renderNodes([]*html.Node{c}))))
			}
		}
		if len(cells) == 0 {
			continue
		}
		if len(rows) == 0 && !hasHeader {
			// First row has no <th>: still treat it as the header row per spec.
		}
		rows = append(rows, cells)
	}
	return rows
}

func tableCaption(tbl *html.Node) string {
	n := findFirst(tbl, "caption")
	if n == nil {
		return ""
	}
	return strings.TrimSpace(textContent(renderNodes([]*html.Node{n})))
}
