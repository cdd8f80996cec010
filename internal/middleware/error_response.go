package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/civicdesk/internal/model"
)

// bearerChallenge は401応答のWWW-Authenticateヘッダー値。
const bearerChallenge = `Bearer realm="civicdesk"`

// ErrorResponseBody はAPIエラーレスポンスの形式。
// バックエンドクライアントはcodeでエラー種別を判定し、messageとactionを画面に表示する。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse はAPIエラーをJSONで書き込む。
// 401にはBearer認証のチャレンジを付け、原因（apiErr.Err）は応答に含めない。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	if statusCode == http.StatusUnauthorized {
		h.Set("WWW-Authenticate", bearerChallenge)
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は500の内部エラーを書き込む。詳細は呼び出し側でログに記録する。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError(nil))
}
