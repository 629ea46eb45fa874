package detection

import "strings"

// Wildcard matches every class.
const Wildcard = "*"

// ParseQueries splits a semicolon separated list into trimmed, non-empty
// phrases: "a bird; a cat" -> ["a bird", "a cat"].
func ParseQueries(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ";") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ClassName reduces a phrase to a bare lowercase class name by dropping a
// leading article: "A Bird" -> "bird".
func ClassName(phrase string) string {
	p := strings.ToLower(strings.TrimSpace(phrase))
	for _, art := range []string{"a ", "an ", "the "} {
		if strings.HasPrefix(p, art) {
			return strings.TrimSpace(p[len(art):])
		}
	}
	return p
}

// ClassFilter reports whether a class is wanted by queries.
func ClassFilter(queries []string) func(class string) bool {
	want := make(map[string]bool, len(queries))
	for _, q := range queries {
		if strings.TrimSpace(q) == Wildcard {
			return func(string) bool { return true }
		}
		want[ClassName(q)] = true
	}
	return func(class string) bool {
		return want[strings.ToLower(class)]
	}
}

func areaRatio(b BoundingBox, width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 1
	}
	r := b.Area() / float64(width*height)
	if r > 1 {
		return 1
	}
	return r
}
