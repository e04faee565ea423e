package eval

import (
	"strings"
	"time"
	"unicode/utf16"

	"github.com/joeandaverde/tinydb/internal/document"
)

// evalMember resolves name against base. Member access never errors
// on a missing or inapplicable name: it yields null, matching the
// evaluator's overall "wrong shape produces null, not a fault" stance
// for member access (arity/type errors in function calls are the
// exception and remain fatal).
func evalMember(base document.Value, name string) (document.Value, error) {
	switch base.Kind() {
	case document.KindDocument:
		doc, _ := base.AsDocument()
		return documentMember(doc, name), nil
	case document.KindArray:
		arr, _ := base.AsArray()
		if strings.EqualFold(name, "Count") {
			return document.NewInt32(int32(len(arr))), nil
		}
		return document.Null, nil
	case document.KindString:
		s, _ := base.AsString()
		if strings.EqualFold(name, "Length") {
			return document.NewInt32(int32(len(utf16.Encode([]rune(s))))), nil
		}
		return document.Null, nil
	case document.KindDateTime:
		t, _ := base.AsDateTime()
		return dateTimeMember(t, name), nil
	default:
		return document.Null, nil
	}
}

// documentMember looks up name against doc's fields, preferring an
// exact-case match, then a case-insensitive match, with Id aliased to
// the `_id` field and Count reporting field arity.
func documentMember(doc *document.Document, name string) document.Value {
	fieldName := name
	if strings.EqualFold(name, "Id") {
		fieldName = "_id"
	}
	if v, ok := doc.Get(fieldName); ok {
		return v
	}
	if v, ok := doc.GetCaseInsensitive(fieldName); ok {
		return v
	}
	if strings.EqualFold(name, "Count") {
		return document.NewInt32(int32(doc.Len()))
	}
	return document.Null
}

func dateTimeMember(t time.Time, name string) document.Value {
	switch {
	case strings.EqualFold(name, "Year"):
		return document.NewInt32(int32(t.Year()))
	case strings.EqualFold(name, "Month"):
		return document.NewInt32(int32(t.Month()))
	case strings.EqualFold(name, "Day"):
		return document.NewInt32(int32(t.Day()))
	case strings.EqualFold(name, "Hour"):
		return document.NewInt32(int32(t.Hour()))
	case strings.EqualFold(name, "Minute"):
		return document.NewInt32(int32(t.Minute()))
	case strings.EqualFold(name, "Second"):
		return document.NewInt32(int32(t.Second()))
	case strings.EqualFold(name, "Date"):
		return document.NewDateTime(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
	case strings.EqualFold(name, "DayOfWeek"):
		return document.NewInt32(int32(t.Weekday()))
	default:
		return document.Null
	}
}
