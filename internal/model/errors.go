// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, data, system
	Action   string // ユーザー向け対処方法
	Err      error  // 変換元のエラー（ログ用、レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は変換元のエラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeAuthFailure      = "AUTH_FAILURE"
	ErrCodeDuplicateAccount = "DUPLICATE_ACCOUNT"
	ErrCodeDataConsistency  = "DATA_CONSISTENCY"
	ErrCodeFetchFailure     = "FETCH_FAILURE"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeProfileNotFound  = "PROFILE_NOT_FOUND"
	ErrCodeInvalidStatus    = "INVALID_STATUS"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// DefaultAuthFailureMessage はバックエンドがメッセージを返さなかった場合の認証エラーメッセージ。
const DefaultAuthFailureMessage = "認証処理中にエラーが発生しました。"

// IsCode はエラーチェーン中のAPIErrorが指定コードを持つかどうかを返す。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewAuthFailureError は認証操作の失敗を表すエラーを生成する。
// messageが空の場合は既定のメッセージを使用する。
func NewAuthFailureError(message string, cause error) *APIError {
	if message == "" {
		message = DefaultAuthFailureMessage
	}
	return &APIError{
		Code:     ErrCodeAuthFailure,
		Message:  message,
		Category: "auth",
		Action:   "入力内容を確認し、再度お試しください。",
		Err:      cause,
	}
}

// AsAuthFailure はバックエンドから返されたエラーをAuthFailureに変換する。
// 既にAPIErrorの場合はそのメッセージを引き継ぐ。
func AsAuthFailure(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == ErrCodeAuthFailure {
			return apiErr
		}
		return NewAuthFailureError(apiErr.Message, err)
	}
	return NewAuthFailureError("", err)
}

// NewDuplicateAccountError は有効なアカウントが既に存在する場合のエラーを生成する。
func NewDuplicateAccountError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateAccount,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: "auth",
		Action:   "ログインするか、パスワードを再設定してください。",
	}
}

// NewDataConsistencyError は認証済みセッションに対応するプロフィールが存在しない場合のエラーを生成する。
func NewDataConsistencyError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeDataConsistency,
		Message:  fmt.Sprintf("ユーザーに対応するプロフィールが見つかりません: %s", userID),
		Category: "data",
		Action:   "管理者にお問い合わせください。",
	}
}

// NewFetchFailureError は一覧取得の失敗を表すエラーを生成する。
func NewFetchFailureError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailure,
		Message:  "通報一覧の取得に失敗しました。",
		Category: "data",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      cause,
	}
}

// NewUnauthorizedError は認証が必要な操作で未認証だった場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidRequestError はリクエスト内容が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewProfileNotFoundError は指定されたプロフィールが存在しない場合のエラーを生成する。
func NewProfileNotFoundError(key string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("プロフィールが見つかりません: %s", key),
		Category: "data",
		Action:   "指定内容を確認してください。",
	}
}

// NewInvalidStatusError は無効な対応状況フィルタが指定された場合のエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効な対応状況です: %s", status),
		Category: "validation",
		Action:   "all、pending、in_progress、resolved、rejected のいずれかを指定してください。",
	}
}

// NewInternalError は利用者に詳細を示さない内部エラーを生成する。原因はErrに保持し、ログにのみ出力する。
func NewInternalError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      cause,
	}
}
