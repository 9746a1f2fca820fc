package types

import "strings"

// Category buckets captured requests by API surface.
type Category string

const (
	CategoryEmbeddings Category = "embeddings"
	CategoryChat       Category = "chat"
	CategoryOther      Category = "other"
)

// Categories lists every category in persist order.
var Categories = []Category{CategoryEmbeddings, CategoryChat, CategoryOther}

// Classify maps a request path to its category. The checks run in order, so
// a path matching both markers lands in embeddings.
func Classify(path string) Category {
	switch {
	case strings.Contains(path, "/embeddings"):
		return CategoryEmbeddings
	case strings.Contains(path, "/chat/completions"):
		return CategoryChat
	default:
		return CategoryOther
	}
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}
