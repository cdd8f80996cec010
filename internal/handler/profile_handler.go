package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hitoshi/civicdesk/internal/middleware"
	"github.com/hitoshi/civicdesk/internal/model"
	"github.com/hitoshi/civicdesk/internal/repository"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とする永続化インターフェース。
// repository.ProfileRepositoryを満たす。
type ProfileServiceInterface interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	FindByEmail(ctx context.Context, email string) (*model.Profile, error)
	Create(ctx context.Context, profile *model.Profile) error
	Revive(ctx context.Context, id, fullName string, phone *string) (bool, error)
}

// AccountEmailFinder は認証済みユーザーの登録メールアドレスを返すインターフェース。
// auth.Serviceを満たす。
type AccountEmailFinder interface {
	EmailForUser(ctx context.Context, userID string) (string, error)
}

// ProfileHandler はプロフィールのHTTPハンドラー。
type ProfileHandler struct {
	service  ProfileServiceInterface
	accounts AccountEmailFinder
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface, accounts AccountEmailFinder) *ProfileHandler {
	return &ProfileHandler{service: service, accounts: accounts}
}

// ProfileResponse はプロフィールのAPIレスポンス。
// バックエンドクライアントも同じ形式でデコードする。
type ProfileResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name"`
	Phone     *string    `json:"phone"`
	Role      model.Role `json:"role"`
	IsDeleted bool       `json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ProfileLookupResponse は本人以外に返すプロフィールの検索結果。
// 登録済みかどうかと論理削除の有無のみを含む。
type ProfileLookupResponse struct {
	ID        string `json:"id"`
	IsDeleted bool   `json:"is_deleted"`
}

// ToProfileResponse はmodel.ProfileからAPIレスポンスに変換する。
func ToProfileResponse(p *model.Profile) ProfileResponse {
	return ProfileResponse{
		ID:        p.ID,
		Email:     p.Email,
		FullName:  p.FullName,
		Phone:     p.Phone,
		Role:      p.Role,
		IsDeleted: p.IsDeleted,
		DeletedAt: p.DeletedAt,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// Model はAPIレスポンスをmodel.Profileに戻す。
func (p ProfileResponse) Model() *model.Profile {
	return &model.Profile{
		ID:        p.ID,
		Email:     p.Email,
		FullName:  p.FullName,
		Phone:     p.Phone,
		Role:      p.Role,
		IsDeleted: p.IsDeleted,
		DeletedAt: p.DeletedAt,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// CreateProfileRequest はプロフィール作成リクエストのボディ。
type CreateProfileRequest struct {
	ID       string     `json:"id"`
	Email    string     `json:"email"`
	FullName string     `json:"full_name"`
	Phone    *string    `json:"phone"`
	Role     model.Role `json:"role"`
}

// ReviveProfileRequest は論理削除済みプロフィール復活リクエストのボディ。
type ReviveProfileRequest struct {
	FullName string  `json:"full_name"`
	Phone    *string `json:"phone"`
}

// Get はIDまたはメールアドレスでプロフィールを取得する。
// 全項目を返すのは本人のセッションからの要求のみで、それ以外はIDと論理削除の有無を返す。
// GET /rest/v1/profiles?id= または ?email=
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, email := q.Get("id"), strings.TrimSpace(q.Get("email"))

	var (
		profile *model.Profile
		err     error
		key     string
	)
	switch {
	case id != "" && email == "":
		if _, parseErr := uuid.Parse(id); parseErr != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("id"))
			return
		}
		key = id
		profile, err = h.service.FindByID(r.Context(), id)
	case email != "" && id == "":
		key = email
		profile, err = h.service.FindByEmail(r.Context(), strings.ToLower(email))
	default:
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("idまたはemailのどちらか一方を指定してください"))
		return
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if profile == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProfileNotFoundError(key))
		return
	}

	if callerID, _ := middleware.UserIDFromContext(r.Context()); callerID != profile.ID {
		writeJSON(w, http.StatusOK, ProfileLookupResponse{ID: profile.ID, IsDeleted: profile.IsDeleted})
		return
	}
	writeJSON(w, http.StatusOK, ToProfileResponse(profile))
}

// callerOwnsEmail は認証済みユーザーの登録メールアドレスがemailと一致するかを返す。
// 一致しない場合は403を書き込む。
func (h *ProfileHandler) callerOwnsEmail(w http.ResponseWriter, r *http.Request, userID, email string) bool {
	accountEmail, err := h.accounts.EmailForUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return false
	}
	if accountEmail == "" || !strings.EqualFold(accountEmail, email) {
		middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewInvalidRequestError("登録メールアドレスと一致しません"))
		return false
	}
	return true
}

// Create は認証済みユーザー自身のプロフィールを作成する。
// 新規プロフィールのロールはcitizenのみ許可する。
// POST /rest/v1/profiles
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}

	var req CreateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID != userID {
		middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewInvalidRequestError("他のユーザーのプロフィールは作成できません"))
		return
	}
	if req.Role == "" {
		req.Role = model.RoleCitizen
	}
	if req.Role != model.RoleCitizen {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("role"))
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("email"))
		return
	}
	if !h.callerOwnsEmail(w, r, userID, email) {
		return
	}

	profile := &model.Profile{
		ID:       req.ID,
		Email:    email,
		FullName: strings.TrimSpace(req.FullName),
		Phone:    req.Phone,
		Role:     req.Role,
	}
	if err := h.service.Create(r.Context(), profile); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			handleServiceError(w, model.NewDuplicateAccountError(email))
			return
		}
		handleServiceError(w, err)
		return
	}

	created, err := h.service.FindByID(r.Context(), profile.ID)
	if err != nil || created == nil {
		created = profile
	}
	writeJSON(w, http.StatusCreated, ToProfileResponse(created))
}

// Revive は認証済みユーザー自身の論理削除済みプロフィールを復活させる。
// プロフィールのメールアドレスが登録メールアドレスと一致する場合のみ受け付ける。
// IDは維持され、氏名と電話番号が上書きされる。
// POST /rest/v1/profiles/{id}/revive
func (h *ProfileHandler) Revive(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}

	id := chi.URLParam(r, "id")
	if id != userID {
		middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewInvalidRequestError("他のユーザーのプロフィールは更新できません"))
		return
	}

	var req ReviveProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	existing, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if existing == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProfileNotFoundError(id))
		return
	}
	if !h.callerOwnsEmail(w, r, userID, existing.Email) {
		return
	}

	revived, err := h.service.Revive(r.Context(), id, strings.TrimSpace(req.FullName), req.Phone)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !revived {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProfileNotFoundError(id))
		return
	}

	profile, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if profile == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProfileNotFoundError(id))
		return
	}
	writeJSON(w, http.StatusOK, ToProfileResponse(profile))
}
