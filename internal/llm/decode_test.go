package llm

import "testing"

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{"plain array", `[{"title":"A"},{"title":"B"}]`, 2, false},
		{"json fence", "```json\n[{\"title\":\"A\"}]\n```", 1, false},
		{"bare fence", "```\n[{\"title\":\"A\"}]\n```", 1, false},
		{"prose around", "Here you go:\n[{\"title\":\"A\"}]\nEnjoy.", 1, false},
		{"object is not an array", `{"title":"A"}`, 0, true},
		{"empty", "   ", 0, true},
		{"garbage", "no json here", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var items []map[string]any
			err := DecodeJSON(tt.content, &items)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeJSON error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(items) != tt.want {
				t.Fatalf("items = %v", items)
			}
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	if got := StripCodeFence("```JSON\n{}\n```"); got != "{}" {
		t.Fatalf("StripCodeFence = %q", got)
	}
	if got := StripCodeFence("  []  "); got != "[]" {
		t.Fatalf("StripCodeFence = %q", got)
	}
}
