package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/civicdesk/internal/middleware"
	"github.com/hitoshi/civicdesk/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限サイズ。
const maxRequestBodyBytes = 64 << 10

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをdstにデコードする。
// 失敗した場合は400レスポンスを書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeAuthFailure, model.ErrCodeInvalidRequest, model.ErrCodeInvalidStatus:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeDuplicateAccount:
		return http.StatusConflict
	case model.ErrCodeProfileNotFound:
		return http.StatusNotFound
	case model.ErrCodeFetchFailure:
		return http.StatusBadGateway
	case model.ErrCodeDataConsistency:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// requireUserID はリクエストコンテキストのユーザーIDを返す。
// 未認証の場合は401レスポンスを書き込み空文字列を返す。
func requireUserID(w http.ResponseWriter, r *http.Request) string {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return ""
	}
	return userID
}
