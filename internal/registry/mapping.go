package registry

import (
	"encoding/json"
	"fmt"
	"strings"
)

// defaultContentMapping is used when learn_from_extraction can't locate the
// extracted title/text anywhere in the structured response.
var defaultContentMapping = map[string]string{
	"title":       "title",
	"description": "description",
}

// findContentMapping searches a JSON response body for the title/text
// values the extractor already pulled out of the rendered page, recording
// each hit's JSON path (dot/bracket notation). Falls back to
// defaultContentMapping if neither value is found anywhere in the document.
func findContentMapping(responseBody []byte, title, text string) map[string]string {
	var doc interface{}
	if err := json.Unmarshal(responseBody, &doc); err != nil {
		return cloneMapping(defaultContentMapping)
	}

	mapping := make(map[string]string)
	if title != "" {
		if path, ok := findPath(doc, "", func(v string) bool { return v == title }); ok {
			mapping["title"] = path
		}
	}
	if text != "" {
		if path, ok := findPath(doc, "", func(v string) bool { return v == text || strings.Contains(v, text) || strings.Contains(text, v) }); ok {
			mapping["text"] = path
		}
	}

	if len(mapping) == 0 {
		return cloneMapping(defaultContentMapping)
	}
	return mapping
}

func cloneMapping(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// findPath walks a decoded JSON document depth-first, returning the path to
// the first string leaf for which match returns true.
func findPath(node interface{}, path string, match func(string) bool) (string, bool) {
	switch v := node.(type) {
	case string:
		if v != "" && match(v) {
			return path, true
		}
	case map[string]interface{}:
		for k, child := range v {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			if p, ok := findPath(child, childPath, match); ok {
				return p, true
			}
		}
	case []interface{}:
		for i, child := range v {
			childPath := fmt.Sprintf("%s[%d]", path, i)
			if p, ok := findPath(child, childPath, match); ok {
				return p, true
			}
		}
	}
	return "", false
}
