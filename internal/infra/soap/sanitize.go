package soap

import (
	"strings"

	"github.com/beevik/etree"

	"github.com/vietddude/registrygw/internal/core/failure"
)

// SanitizeDetail flattens a fault detail element into a map. Elements and
// attributes whose names or values look like key or certificate material
// are replaced with failure.Redacted. Repeated elements become slices.
func SanitizeDetail(el *etree.Element) map[string]any {
	out := make(map[string]any)
	for _, a := range el.Attr {
		out["@"+a.Key] = failure.RedactValue(a.Key, a.Value)
	}
	if t := strings.TrimSpace(el.Text()); t != "" {
		out["#text"] = failure.RedactValue(el.Tag, t)
	}
	for _, c := range el.ChildElements() {
		v := sanitizeElement(c)
		if prev, ok := out[c.Tag]; ok {
			if list, isList := prev.([]any); isList {
				out[c.Tag] = append(list, v)
			} else {
				out[c.Tag] = []any{prev, v}
			}
			continue
		}
		out[c.Tag] = v
	}
	return out
}

func sanitizeElement(el *etree.Element) any {
	if failure.IsSensitiveName(el.Tag) {
		return failure.Redacted
	}
	if len(el.ChildElements()) == 0 && len(el.Attr) == 0 {
		return failure.RedactValue(el.Tag, strings.TrimSpace(el.Text()))
	}
	return SanitizeDetail(el)
}
