package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractNestedRecords handles the nested-div export layout: blocks of class
// "t o" with a "t i" title element and a "m" content element. Blocks titled
// exactly "Message" hold one record each as a flat list of label/value child
// blocks; a separate block titled "Account Identifier" supplies the target
// number for the whole document.
func extractNestedRecords(doc *goquery.Document) []RawFieldMap {
	blocks := doc.Find("div.t.o")

	var records []RawFieldMap
	blocks.Each(func(_ int, block *goquery.Selection) {
		title := block.Find("div.t.i").First()
		if directText(title) != "Message" {
			return
		}

		content := block.Find("div.m").First()
		if content.Length() == 0 {
			return
		}

		inner := content.Find("div").First()
		if inner.Length() == 0 {
			return
		}

		record := RawFieldMap{}
		inner.ChildrenFiltered("div.t.o").Each(func(_ int, field *goquery.Selection) {
			keyDiv := field.Find("div.t.i").First()
			valDiv := field.Find("div.m").First()
			if keyDiv.Length() == 0 || valDiv.Length() == 0 {
				return
			}

			key := strings.ReplaceAll(directText(keyDiv), ":", "")
			val := strings.TrimSpace(valDiv.Text())

			if role, ok := mapRecordKey(key); ok {
				record[role] = val
			}
		})

		if len(record) > 0 {
			records = append(records, record)
		}
	})

	// The target number lives in its own "Account Identifier" block; apply it
	// to every record that has no per-record target of its own.
	if account := findAccountIdentifier(blocks); account != "" {
		for _, r := range records {
			if _, ok := r[FieldTarget]; !ok {
				r[FieldTarget] = account
			}
		}
	}

	return records
}

// mapRecordKey maps a field label to its role. "Sender" must be an exact
// match: "Sender Ip" and "Sender Port" carry the same prefix and are checked
// first.
func mapRecordKey(key string) (FieldRole, bool) {
	switch {
	case strings.Contains(key, "Timestamp"):
		return FieldTimestamp, true
	case strings.Contains(key, "Sender Ip"):
		return FieldIP, true
	case strings.Contains(key, "Sender Port"):
		return FieldPort, true
	case key == "Sender":
		return FieldSender, true
	case strings.Contains(key, "Recipients"):
		return FieldRecipient, true
	case strings.Contains(key, "Type"):
		return FieldType, true
	default:
		return "", false
	}
}

func findAccountIdentifier(blocks *goquery.Selection) string {
	var account string

	blocks.EachWithBreak(func(_ int, block *goquery.Selection) bool {
		title := block.Find("div.t.i").First()
		if !strings.Contains(directText(title), "Account Identifier") {
			return true
		}

		val := block.Find("div.m").First()
		if val.Length() > 0 {
			account = strings.ReplaceAll(strings.TrimSpace(val.Text()), "+", "")
			return false
		}
		return true
	})

	return account
}
