package sanitize

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "Computer Science", "Computer Science"},
		{"trims", "  Ada Lovelace \n", "Ada Lovelace"},
		{"apostrophe", "O'Brien", "O'Brien"},
		{"ampersand", "Arts & Letters", "Arts & Letters"},
		{"bold tag", "<b>Physics</b>", "Physics"},
		{"script dropped", `Mathematics<script>alert("x")</script>`, "Mathematics"},
		{"attribute handler", `<img src=x onerror="alert(1)">Chemistry`, "Chemistry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.input); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
