package export

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Helpers for pulling optional nested fields out of raw order documents.
// Absent or null values always come back as the empty string.

func text(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func field(m map[string]interface{}, key string) interface{} {
	if m == nil {
		return nil
	}
	return m[key]
}

func str(m map[string]interface{}, key string) string {
	return text(field(m, key))
}

func sub(m map[string]interface{}, key string) map[string]interface{} {
	v, _ := field(m, key).(map[string]interface{})
	return v
}

func list(m map[string]interface{}, key string) []interface{} {
	v, _ := field(m, key).([]interface{})
	return v
}

func idx(a []interface{}, i int) interface{} {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}

func at(a []interface{}, i int) map[string]interface{} {
	v, _ := idx(a, i).(map[string]interface{})
	return v
}

// jsonText renders a field as embedded JSON text, empty when absent.
func jsonText(v interface{}) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
