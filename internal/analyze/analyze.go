package analyze

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/dgnsrekt/copilot_capture/internal/storage"
)

const (
	maxSamples        = 3
	bodyPreviewLimit  = 200
	bodyPreviewRunes  = 100
	noneContentType   = "none"
	unknownMethod     = "UNKNOWN"
	contentTypeHeader = "content-type"
)

// headerKeys are the record fields searched for request headers, in order.
// requestHeaders comes from older capture tools, all_headers from the proxy.
var headerKeys = []string{"requestHeaders", "all_headers"}

// bodyKeys are the record fields searched for the request body, in order.
var bodyKeys = []string{"requestBody", "body"}

// Count is one row of a frequency table.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Sample summarizes one record for display.
type Sample struct {
	Method      string `json:"method"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	// BodyPreview is empty when the body is absent or too long to show.
	BodyPreview string `json:"body_preview,omitempty"`
}

// Report is the result of one analysis pass.
type Report struct {
	Total        int      `json:"total"`
	Filter       string   `json:"filter,omitempty"`
	Records      []Record `json:"-"`
	Methods      []Count  `json:"methods"`
	Endpoints    []Count  `json:"endpoints"`
	ContentTypes []Count  `json:"content_types"`
	Samples      []Sample `json:"samples"`
}

// Analyze filters records by a case-insensitive substring of their
// serialized JSON (empty filter keeps all) and builds the frequency tables.
func Analyze(records []Record, filter string) Report {
	rep := Report{Total: len(records), Filter: filter}

	needle := strings.ToLower(filter)
	for _, rec := range records {
		if needle == "" || strings.Contains(strings.ToLower(serialize(rec)), needle) {
			rep.Records = append(rep.Records, rec)
		}
	}

	methods := make(map[string]int)
	endpoints := make(map[string]int)
	contentTypes := make(map[string]int)
	for _, rec := range rep.Records {
		methods[method(rec)]++
		endpoints[storage.StripQuery(stringField(rec, "url"))]++
		contentTypes[contentType(rec)]++
	}

	rep.Methods = byKey(methods)
	rep.Endpoints = byCountDesc(endpoints)
	rep.ContentTypes = byCountDesc(contentTypes)

	for i, rec := range rep.Records {
		if i == maxSamples {
			break
		}
		rep.Samples = append(rep.Samples, Sample{
			Method:      method(rec),
			URL:         stringField(rec, "url"),
			ContentType: contentType(rec),
			BodyPreview: bodyPreview(rec),
		})
	}
	return rep
}

func method(rec Record) string {
	if m := stringField(rec, "method"); m != "" {
		return m
	}
	return unknownMethod
}

func stringField(rec Record, key string) string {
	s, _ := rec[key].(string)
	return s
}

func contentType(rec Record) string {
	for _, key := range headerKeys {
		headers, ok := rec[key].(map[string]any)
		if !ok {
			continue
		}
		for name, value := range headers {
			if strings.EqualFold(name, contentTypeHeader) {
				if s, ok := value.(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return noneContentType
}

func bodyPreview(rec Record) string {
	var body any
	for _, key := range bodyKeys {
		if v, ok := rec[key]; ok && !isEmpty(v) {
			body = v
			break
		}
	}
	if body == nil {
		return ""
	}

	text, ok := body.(string)
	if !ok {
		text = serialize(body)
	}
	runes := []rune(text)
	if len(runes) >= bodyPreviewLimit {
		return ""
	}
	if len(runes) > bodyPreviewRunes {
		return string(runes[:bodyPreviewRunes]) + "..."
	}
	return text
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

// serialize renders v as compact JSON without HTML escaping, so filters
// match the text as it appears in the file.
func serialize(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func byKey(m map[string]int) []Count {
	out := toCounts(m)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func byCountDesc(m map[string]int) []Count {
	out := toCounts(m)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func toCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Key: k, Count: v})
	}
	return out
}
