package tui

import (
	"strings"
	"testing"
)

func TestEditRune(t *testing.T) {
	tests := []struct {
		name  string
		start string
		key   string
		want  string
	}{
		{"空文字列に追加", "", "a", "a"},
		{"末尾に追加", "hel", "l", "hell"},
		{"空白", "a", " ", "a "},
		{"マルチバイト文字", "東京", "都", "東京都"},
		{"backspace", "hello", "backspace", "hell"},
		{"マルチバイトのbackspace", "héllo東", "backspace", "héllo"},
		{"空文字列のbackspace", "", "backspace", ""},
		{"特殊キーは無視", "abc", "enter", "abc"},
		{"矢印キーは無視", "abc", "left", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := editRune(tt.start, tt.key); got != tt.want {
				t.Errorf("editRune(%q, %q) = %q, want %q", tt.start, tt.key, got, tt.want)
			}
		})
	}
}

func TestEditRune_MaxLength(t *testing.T) {
	full := strings.Repeat("a", maxInputLen)
	if got := editRune(full, "b"); got != full {
		t.Errorf("最大文字数を超えて追加されています: len=%d", len(got))
	}
}

func TestTruncStr(t *testing.T) {
	if got := truncStr("Pothole on Elm St", 8); got != "Pothole…" {
		t.Errorf("truncStr = %q", got)
	}
	if got := truncStr("短い", 8); got != "短い" {
		t.Errorf("truncStr = %q", got)
	}
}

func TestIsHexColor(t *testing.T) {
	tests := map[string]bool{
		"#ff0000": true,
		"#ABCDEF": true,
		"ff0000":  false,
		"#ff00":   false,
		"#gg0000": false,
		"":        false,
	}
	for in, want := range tests {
		if got := isHexColor(in); got != want {
			t.Errorf("isHexColor(%q) = %v, want %v", in, got, want)
		}
	}
}
