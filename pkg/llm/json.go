package llm

import "strings"

// ExtractJSON slices the first JSON object out of a model response. Models
// wrap JSON in prose or code fences often enough that naive unmarshal fails;
// brace slicing is crude but has held up in practice.
func ExtractJSON(response string) string {
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")

	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return ""
	}

	return response[startIdx : endIdx+1]
}

// ExtractJSONArray does the same for a top-level JSON array.
func ExtractJSONArray(response string) string {
	startIdx := strings.Index(response, "[")
	endIdx := strings.LastIndex(response, "]")

	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return ""
	}

	return response[startIdx : endIdx+1]
}
