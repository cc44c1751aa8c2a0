package intake

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Answers is the raw questionnaire as submitted: field name -> value.
// Values carry whatever shape JSON decoding produced.
type Answers map[string]any

// Recognized field names
const (
	FieldAge                = "age"
	FieldGender             = "gender"
	FieldWeight             = "weight"
	FieldHeight             = "height"
	FieldChronicDiseases    = "chronic_diseases"
	FieldCurrentMedications = "current_medications"
	FieldSymptoms           = "symptoms"
	FieldGoals              = "goals"
	FieldLifestyle          = "lifestyle"
)

// Int returns a whole-number field. Strings holding a number are accepted.
func (a Answers) Int(key string) (int, bool) {
	switch v := a[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// String returns a string field, trimmed.
func (a Answers) String(key string) string {
	if s, ok := a[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// Strings returns a list field. A single string is treated as a one element list,
// non-string list items are skipped.
func (a Answers) Strings(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, it := range v {
			if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{strings.TrimSpace(v)}
	}
	return nil
}

// Keys lists the submitted field names.
func (a Answers) Keys() []string {
	out := make([]string, 0, len(a))
	for k := range a {
		out = append(out, k)
	}
	return out
}
