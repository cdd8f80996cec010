package handler

import (
	"context"
	"net/http"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Withdraw はユーザーの退会処理を実行する。
	// プロフィールを論理削除し、セッションと認証情報を削除する。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はアカウント管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// Withdraw は認証済みユーザー自身の退会処理を実行する。
// DELETE /rest/v1/account
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
