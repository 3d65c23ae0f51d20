package mcplug

import "testing"

func TestSuggestTool(t *testing.T) {
	tests := []struct {
		name  string
		input string
		known []string
		want  string
	}{
		{"single close match", "ad", []string{"add", "echo"}, "add"},
		{"exact distance two", "a", []string{"add", "echo"}, "add"},
		{"too distant", "zzzzz", []string{"add", "echo"}, ""},
		{"ambiguous", "ade", []string{"add", "ace"}, ""},
		{"no candidates", "add", nil, ""},
		{"two candidates within distance two", "adds", []string{"add", "adder"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SuggestTool(tt.input, tt.known); got != tt.want {
				t.Errorf("SuggestTool(%q, %v) = %q, want %q", tt.input, tt.known, got, tt.want)
			}
		})
	}
}
