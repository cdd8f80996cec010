// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は通報のタイトル・説明・住所などユーザー入力のテキストから
// HTMLタグと端末制御文字を除去し、APIレスポンスや端末表示に安全なプレーンテキストを返す。
// HTMLの除去にはbluemondayのStrictPolicyを使用する。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はHTMLタグと制御文字（改行・タブを除く）を除去したプレーンテキストを返す。
	// エスケープされたHTMLエンティティは元の文字に戻す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに使用できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLタグと制御文字を除去する。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	text := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
}
