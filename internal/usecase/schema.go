package usecase

import (
	"sort"
	"strings"

	"github.com/example/record-service/internal/domain"
	"github.com/example/record-service/pkg/apperr"
)

// InferSchema derives a dataset schema from upload headers. Headers are
// trimmed; empty or repeated names reject the whole file. The returned
// column slice keeps the upload order.
func InferSchema(headers []string) (domain.Schema, []string, error) {
	if len(headers) == 0 {
		return nil, nil, apperr.BadRequest("No columns detected in file.")
	}
	schema := make(domain.Schema, len(headers))
	columns := make([]string, 0, len(headers))
	for _, h := range headers {
		name := strings.TrimSpace(h)
		if name == "" {
			return nil, nil, apperr.BadRequest("One or more column headers are empty.")
		}
		if _, dup := schema[name]; dup {
			return nil, nil, apperr.BadRequest("Duplicate column names detected.")
		}
		schema[name] = domain.ColumnTypeString
		columns = append(columns, name)
	}
	return schema, columns, nil
}

// ValidatePayload compares payload keys with the schema. With allowPartial
// only unknown keys are rejected; otherwise the key sets must be equal.
func ValidatePayload(payload map[string]interface{}, schema domain.Schema, allowPartial bool) (bool, string) {
	if !allowPartial {
		var missing []string
		for key := range schema {
			if _, ok := payload[key]; !ok {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			return false, "Missing required fields: " + quotedList(missing)
		}
	}
	var unknown []string
	for key := range payload {
		if _, ok := schema[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		return false, "Unknown fields: " + quotedList(unknown)
	}
	return true, ""
}

func validatePayload(payload map[string]interface{}, schema domain.Schema, allowPartial bool) error {
	if ok, reason := ValidatePayload(payload, schema, allowPartial); !ok {
		return apperr.BadRequest(reason)
	}
	return nil
}

// quotedList renders keys as ['a', 'b'] in sorted order.
func quotedList(keys []string) string {
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('[')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('\'')
		b.WriteString(k)
		b.WriteByte('\'')
	}
	b.WriteByte(']')
	return b.String()
}
