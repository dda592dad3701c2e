package schema

import (
	"strings"
	"unicode"
)

// PredicateName derives a predicate name from a Go type name using the
// conventional transform: camelCase and PascalCase word boundaries become
// underscores, acronym runs stay together, and the result is lowercase.
//
//	PredicateName("Driver")       == "driver"
//	PredicateName("DriverItem")   == "driver_item"
//	PredicateName("HTTPRequest")  == "http_request"
//	PredicateName("DriverID")     == "driver_id"
//	PredicateName("parseJSON2")   == "parse_json2"
//
// Use it at schema registration time when the predicate name should follow a
// native type's name; pass an explicit name to schema.New to override.
func PredicateName(typeName string) string {
	runes := []rune(typeName)
	var sb strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			boundary := false
			if i > 0 {
				prev := runes[i-1]
				if unicode.IsLower(prev) || unicode.IsDigit(prev) {
					// aB -> a_b
					boundary = true
				} else if unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
					// End of an acronym run: HTTPServer -> http_server.
					boundary = true
				}
			}
			if boundary {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
