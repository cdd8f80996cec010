package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/hitoshi/civicdesk/internal/handler"
	"github.com/hitoshi/civicdesk/internal/incident"
	"github.com/hitoshi/civicdesk/internal/model"
	"github.com/hitoshi/civicdesk/internal/session"
)

var (
	_ session.AuthBackend  = (*Client)(nil)
	_ session.ProfileStore = (*Client)(nil)
	_ incident.Source      = (*Client)(nil)
)

// ProfileByID はIDでプロフィールを取得する。存在しない場合はnilを返す。
func (c *Client) ProfileByID(ctx context.Context, id string) (*model.Profile, error) {
	return c.getProfile(ctx, url.Values{"id": {id}})
}

// ProfileByEmail はメールアドレスでプロフィールを取得する。存在しない場合はnilを返す。
func (c *Client) ProfileByEmail(ctx context.Context, email string) (*model.Profile, error) {
	return c.getProfile(ctx, url.Values{"email": {email}})
}

func (c *Client) getProfile(ctx context.Context, query url.Values) (*model.Profile, error) {
	var resp handler.ProfileResponse
	err := c.do(ctx, http.MethodGet, "/rest/v1/profiles", query, nil, &resp, c.token())
	if model.IsCode(err, model.ErrCodeProfileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resp.Model(), nil
}

// InsertProfile はログイン中のユーザーのプロフィールを作成する。
func (c *Client) InsertProfile(ctx context.Context, profile *model.Profile) error {
	req := handler.CreateProfileRequest{
		ID:       profile.ID,
		Email:    profile.Email,
		FullName: profile.FullName,
		Phone:    profile.Phone,
		Role:     profile.Role,
	}
	var resp handler.ProfileResponse
	if err := c.do(ctx, http.MethodPost, "/rest/v1/profiles", nil, req, &resp, c.token()); err != nil {
		return err
	}
	profile.CreatedAt = resp.CreatedAt
	profile.UpdatedAt = resp.UpdatedAt
	return nil
}

// ReviveProfile は論理削除済みプロフィールを復活させる。
// 対象が論理削除済みでない場合はPROFILE_NOT_FOUNDエラーを返す。
func (c *Client) ReviveProfile(ctx context.Context, id, fullName string, phone *string) error {
	req := handler.ReviveProfileRequest{FullName: fullName, Phone: phone}
	return c.do(ctx, http.MethodPost, "/rest/v1/profiles/"+url.PathEscape(id)+"/revive", nil, req, nil, c.token())
}

// ListIncidents は全通報をcreated_at降順で返す。
func (c *Client) ListIncidents(ctx context.Context) ([]model.Incident, error) {
	var list []model.Incident
	if err := c.do(ctx, http.MethodGet, "/rest/v1/incidents", nil, nil, &list, c.token()); err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Incident{}
	}
	return list, nil
}

// Categories は全カテゴリを返す。
func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	var list []model.Category
	if err := c.do(ctx, http.MethodGet, "/rest/v1/categories", nil, nil, &list, c.token()); err != nil {
		return nil, err
	}
	return list, nil
}
