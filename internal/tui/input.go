package tui

import "unicode/utf8"

// maxInputLen はフォーム入力の最大文字数。
const maxInputLen = 256

// editRune はキー入力を文字列編集として適用する。
// backspaceは1文字（rune単位）削除し、1文字のキーは末尾に追加する。それ以外のキーは無視する。
func editRune(text string, key string) string {
	switch key {
	case "backspace":
		if len(text) > 0 {
			runes := []rune(text)
			return string(runes[:len(runes)-1])
		}
		return text
	case "space":
		key = " "
	}
	if utf8.RuneCountInString(key) != 1 {
		return text
	}
	if utf8.RuneCountInString(text) >= maxInputLen {
		return text
	}
	return text + key
}

// truncStr はmaxLen文字を超える文字列を省略記号付きで切り詰める。
func truncStr(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-1]) + "…"
}
