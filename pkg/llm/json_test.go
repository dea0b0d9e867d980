package llm

import (
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "bare object",
			response: `{"a": 1}`,
			want:     `{"a": 1}`,
		},
		{
			name:     "code fence",
			response: "```json\n{\"a\": 1}\n```",
			want:     `{"a": 1}`,
		},
		{
			name:     "prose around object",
			response: `Sure, here is the JSON: {"a": 1}. Let me know!`,
			want:     `{"a": 1}`,
		},
		{
			name:     "nested braces kept",
			response: `{"outer": {"inner": true}}`,
			want:     `{"outer": {"inner": true}}`,
		},
		{
			name:     "no object",
			response: "I cannot answer that.",
			want:     "",
		},
		{
			name:     "closing before opening",
			response: "} nothing {",
			want:     "",
		},
		{
			name:     "empty input",
			response: "",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSON(tt.response)
			if got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "bare array",
			response: `["a", "b"]`,
			want:     `["a", "b"]`,
		},
		{
			name:     "fenced array",
			response: "Here you go:\n```json\n[\"one\", \"two\"]\n```",
			want:     `["one", "two"]`,
		},
		{
			name:     "no array",
			response: "nope",
			want:     "",
		},
		{
			name:     "array of objects",
			response: `[{"q": "x"}, {"q": "y"}]`,
			want:     `[{"q": "x"}, {"q": "y"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSONArray(tt.response)
			if got != tt.want {
				t.Errorf("ExtractJSONArray() = %q, want %q", got, tt.want)
			}
		})
	}
}
