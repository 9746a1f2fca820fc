package capture

import (
	"net/http"
	"strings"
)

// interestHeaders copies every header whose lower-cased name contains one of
// the keywords. Keywords must already be lower case.
func interestHeaders(h http.Header, keywords []string) map[string]string {
	out := make(map[string]string)
	for name, values := range h {
		lower := strings.ToLower(name)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				out[name] = strings.Join(values, ", ")
				break
			}
		}
	}
	return out
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
