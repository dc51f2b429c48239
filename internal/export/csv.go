// Package export flattens Shopify orders into the fixed-schema CSV the
// export endpoint serves. One data row is emitted per order line item; an
// order without line items contributes no rows.
package export

import (
	"strings"

	"shopify-orders-exporter/internal/domain"
)

// Headers returns the CSV header names in output order.
func Headers() []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.name
	}
	return names
}

// BuildCSV renders orders into CSV text. The header row is always present,
// even for zero orders. Every data field is double-quoted with embedded
// quotes doubled; no other escaping is applied, and rows are joined with a
// single newline. The output is deterministic for a given input.
func BuildCSV(orders []domain.Order) string {
	rows := make([]string, 0, len(orders)+1)
	rows = append(rows, strings.Join(Headers(), ","))

	for _, order := range orders {
		for _, raw := range list(order, "line_items") {
			item, _ := raw.(map[string]interface{})
			rows = append(rows, buildRow(order, item))
		}
	}

	return strings.Join(rows, "\n")
}

// RowCount returns the number of data rows in a rendered CSV. Only
// newlines outside quoted fields separate rows; a multi-line note inside a
// field does not count.
func RowCount(csv string) int {
	rows := 0
	inQuotes := false
	for i := 0; i < len(csv); i++ {
		switch csv[i] {
		case '"':
			inQuotes = !inQuotes
		case '\n':
			if !inQuotes {
				rows++
			}
		}
	}
	return rows
}

func buildRow(order domain.Order, item map[string]interface{}) string {
	fields := make([]string, len(columns))
	for i, c := range columns {
		fields[i] = quote(c.value(order, item))
	}
	return strings.Join(fields, ",")
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
