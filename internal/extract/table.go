package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractTable reads the first <table> in the document. Header cells are
// matched case-insensitively by substring to field roles; each data row then
// yields one RawFieldMap from the mapped column indices.
func extractTable(doc *goquery.Document) []RawFieldMap {
	table := doc.Find("table").First()

	var headers []string
	table.Find("th").Each(func(_ int, th *goquery.Selection) {
		headers = append(headers, strings.ToUpper(strings.TrimSpace(th.Text())))
	})

	colMap := mapHeaderColumns(headers)

	var records []RawFieldMap
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			// Header row.
			return
		}

		cols := row.Find("td")
		if cols.Length() == 0 {
			return
		}

		record := RawFieldMap{}
		for role, idx := range colMap {
			if idx < cols.Length() {
				record[role] = strings.TrimSpace(cols.Eq(idx).Text())
			}
		}
		records = append(records, record)
	})

	return records
}

// mapHeaderColumns maps each field role to its column index. Headers come
// from Portuguese exports ("REMETENTE", "DESTINATÁRIO", ...). "IP" is only
// accepted when the header does not also mention "TIPO", so a "TIPO" column
// is never misread as an IP column.
func mapHeaderColumns(headers []string) map[FieldRole]int {
	colMap := make(map[FieldRole]int)

	for i, h := range headers {
		switch {
		case strings.Contains(h, "ALVO"):
			colMap[FieldTarget] = i
		case strings.Contains(h, "REMETENTE"):
			colMap[FieldSender] = i
		case strings.Contains(h, "DESTINATÁRIO") || strings.Contains(h, "DESTINATARIO"):
			colMap[FieldRecipient] = i
		case strings.Contains(h, "IP") && !strings.Contains(h, "TIPO"):
			colMap[FieldIP] = i
		case strings.Contains(h, "PORTA"):
			colMap[FieldPort] = i
		case strings.Contains(h, "DATA") || strings.Contains(h, "HORA"):
			colMap[FieldTimestamp] = i
		case strings.Contains(h, "TIPO"):
			colMap[FieldType] = i
		}
	}

	return colMap
}
