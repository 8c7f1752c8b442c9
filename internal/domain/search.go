package domain

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// FieldFilter is one conjunct of a directory search. Exactly one of Text
// and Number is set.
type FieldFilter struct {
	Field  string
	Text   *string
	Number *float64
}

// ParseSearchQuery turns a JSON search body into filters sorted by field.
// Values that are neither strings nor numbers, and field names outside
// [A-Za-z0-9_], are dropped.
func ParseSearchQuery(query map[string]any) []FieldFilter {
	out := make([]FieldFilter, 0, len(query))
	for field, value := range query {
		if !fieldNamePattern.MatchString(field) {
			continue
		}
		f := FieldFilter{Field: field}
		switch v := value.(type) {
		case string:
			f.Text = &v
		case float64:
			f.Number = &v
		case int:
			n := float64(v)
			f.Number = &n
		case int64:
			n := float64(v)
			f.Number = &n
		case json.Number:
			n, err := v.Float64()
			if err != nil {
				continue
			}
			f.Number = &n
		default:
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// Matches applies the filter to an in-memory profile. Text filters are case
// insensitive substring matches on the value's text form.
func (f FieldFilter) Matches(profile map[string]any) bool {
	value, ok := profile[f.Field]
	if !ok {
		return false
	}
	if f.Number != nil {
		n, ok := value.(float64)
		return ok && n == *f.Number
	}
	var text string
	switch v := value.(type) {
	case string:
		text = v
	case float64:
		text = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(*f.Text))
}

// EscapeLike escapes LIKE wildcards using backslash as the escape character.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
