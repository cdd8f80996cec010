// Package auth はホスト型バックエンドの認証機能（認証情報、セッション、パスワード再設定、
// 認証状態変更通知）を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/civicdesk/internal/model"
	"github.com/hitoshi/civicdesk/internal/repository"
)

// minPasswordLength はパスワードの最小文字数。
const minPasswordLength = 6

// 認証失敗時にクライアントへ返すメッセージ。
const (
	msgInvalidCredentials = "メールアドレスまたはパスワードが正しくありません。"
	msgAlreadyRegistered  = "このメールアドレスは既に登録されています。"
	msgInvalidEmail       = "メールアドレスの形式が正しくありません。"
	msgWeakPassword       = "パスワードは6文字以上で入力してください。"
	msgInvalidUserID      = "ユーザーIDの形式が正しくありません。"
	msgUserIDUnavailable  = "指定されたユーザーIDでは登録できません。"
	msgSessionRequired    = "セッションが見つからないか、有効期限が切れています。"
	msgInvalidRedirect    = "再設定後の遷移先URLが正しくありません。"
	msgInvalidRecovery    = "再設定リンクが無効か、有効期限が切れています。"
)

// Recorder は認証操作の結果を記録するメトリクスインターフェース。
type Recorder interface {
	RecordAuthOperation(operation, result string)
}

// ProfileLookup は登録時のユーザーID指定を検証するためのプロフィール参照インターフェース。
// repository.ProfileRepositoryを満たす。
type ProfileLookup interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge    int           // セッション有効期間（秒）
	BcryptCost       int           // bcryptのコスト
	RecoveryTokenTTL time.Duration // パスワード再設定トークンの有効期間
	// RecoveryRedirectURL は再設定メールのリンク先。クライアントが指定できるのは
	// スキーム・ホスト・パスがこれと一致するURLのみ。
	RecoveryRedirectURL string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	creds    repository.CredentialRepository
	sessions repository.SessionRepository
	recovery repository.RecoveryTokenRepository
	profiles ProfileLookup
	mailer   Mailer
	events   *Broadcaster
	metrics  Recorder
	config   ServiceConfig
	now      func() time.Time
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(
	creds repository.CredentialRepository,
	sessions repository.SessionRepository,
	recovery repository.RecoveryTokenRepository,
	profiles ProfileLookup,
	mailer Mailer,
	events *Broadcaster,
	metrics Recorder,
	config ServiceConfig,
) *Service {
	if config.SessionMaxAge <= 0 {
		config.SessionMaxAge = 3600
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.RecoveryTokenTTL <= 0 {
		config.RecoveryTokenTTL = time.Hour
	}
	if events == nil {
		events = NewBroadcaster(0, nil)
	}
	return &Service{
		creds:    creds,
		sessions: sessions,
		recovery: recovery,
		profiles: profiles,
		mailer:   mailer,
		events:   events,
		metrics:  metrics,
		config:   config,
		now:      time.Now,
	}
}

// Events は認証状態変更通知のBroadcasterを返す。
func (s *Service) Events() *Broadcaster {
	return s.events
}

// Register は認証情報を登録し、セッションを発行する。
// userIDが指定された場合はそのIDで登録する（論理削除済みプロフィールの復活用）。
// 指定できるのは同じメールアドレスの論理削除済みプロフィールのIDのみ。
func (s *Service) Register(ctx context.Context, email, password, userID string) (session *model.Session, err error) {
	defer func() { s.record("register", err) }()

	email, err = normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, model.NewAuthFailureError(msgWeakPassword, nil)
	}
	if userID == "" {
		userID = uuid.New().String()
	} else if _, parseErr := uuid.Parse(userID); parseErr != nil {
		return nil, model.NewAuthFailureError(msgInvalidUserID, parseErr)
	} else if err := s.checkRevivableID(ctx, userID, email); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	cred := &model.Credential{
		UserID:       userID,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.creds.Create(ctx, cred); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, model.NewAuthFailureError(msgAlreadyRegistered, err)
		}
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}

	slog.Info("user registered", slog.String("user_id", userID))

	session, err = s.createSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.events.Publish(model.AuthEvent{
		Type: model.AuthEventSignedIn, Session: session, UserID: userID, SessionID: session.ID,
	})
	return session, nil
}

// checkRevivableID はuserIDが同じメールアドレスの論理削除済みプロフィールのIDであることを確認する。
func (s *Service) checkRevivableID(ctx context.Context, userID, email string) error {
	if s.profiles == nil {
		return model.NewAuthFailureError(msgUserIDUnavailable, nil)
	}
	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find profile: %w", err)
	}
	if profile == nil || !profile.IsDeleted || !strings.EqualFold(profile.Email, email) {
		slog.Warn("register with unavailable user id rejected", slog.String("user_id", userID))
		return model.NewAuthFailureError(msgUserIDUnavailable, nil)
	}
	return nil
}

// Authenticate はメールアドレスとパスワードを検証し、セッションを発行する。
func (s *Service) Authenticate(ctx context.Context, email, password string) (session *model.Session, err error) {
	defer func() { s.record("authenticate", err) }()

	email, err = normalizeEmail(email)
	if err != nil {
		return nil, model.NewAuthFailureError(msgInvalidCredentials, err)
	}

	cred, err := s.creds.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	if cred == nil {
		return nil, model.NewAuthFailureError(msgInvalidCredentials, nil)
	}
	if err := bcrypt.CompareHashAndPassword(cred.PasswordHash, []byte(password)); err != nil {
		return nil, model.NewAuthFailureError(msgInvalidCredentials, err)
	}

	session, err = s.createSession(ctx, cred.UserID)
	if err != nil {
		return nil, err
	}

	slog.Info("user signed in", slog.String("user_id", cred.UserID))
	s.events.Publish(model.AuthEvent{
		Type: model.AuthEventSignedIn, Session: session, UserID: cred.UserID, SessionID: session.ID,
	})
	return session, nil
}

// Invalidate はセッションを破棄する。
func (s *Service) Invalidate(ctx context.Context, sessionID string) (err error) {
	defer func() { s.record("invalidate", err) }()

	if sessionID == "" {
		return model.NewAuthFailureError(msgSessionRequired, nil)
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}
	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	evt := model.AuthEvent{Type: model.AuthEventSignedOut, SessionID: sessionID}
	if session != nil {
		evt.UserID = session.UserID
	}
	s.events.Publish(evt)

	slog.Info("user signed out", slog.String("user_id", evt.UserID))
	return nil
}

// Refresh はセッションの有効期限を延長する。
func (s *Service) Refresh(ctx context.Context, sessionID string) (session *model.Session, err error) {
	defer func() { s.record("refresh", err) }()

	if sessionID == "" {
		return nil, model.NewAuthFailureError(msgSessionRequired, nil)
	}
	session, err = s.sessions.Extend(ctx, sessionID, s.expiry())
	if err != nil {
		return nil, fmt.Errorf("failed to extend session: %w", err)
	}
	if session == nil {
		return nil, model.NewAuthFailureError(msgSessionRequired, nil)
	}

	s.events.Publish(model.AuthEvent{
		Type: model.AuthEventTokenRefreshed, Session: session, UserID: session.UserID, SessionID: session.ID,
	})
	return session, nil
}

// CurrentSession は有効なセッションを返す。存在しないか期限切れの場合はnilを返す。
func (s *Service) CurrentSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

// EmailForUser はユーザーの登録メールアドレスを返す。認証情報がない場合は空文字を返す。
func (s *Service) EmailForUser(ctx context.Context, userID string) (string, error) {
	cred, err := s.creds.FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to find credential: %w", err)
	}
	if cred == nil {
		return "", nil
	}
	return cred.Email, nil
}

// RequestPasswordReset はパスワード再設定メールを送信する。
// redirectToが空の場合は設定済みの遷移先を使う。設定と異なる遷移先は拒否する。
// 未登録のメールアドレスでも成功を返し、登録有無を推測させない。
func (s *Service) RequestPasswordReset(ctx context.Context, email, redirectTo string) (err error) {
	defer func() { s.record("recover", err) }()

	email, err = normalizeEmail(email)
	if err != nil {
		return err
	}
	target, err := s.recoveryTarget(redirectTo)
	if err != nil {
		return err
	}

	cred, err := s.creds.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find credential: %w", err)
	}
	if cred == nil {
		slog.Info("password recovery requested for unknown email")
		return nil
	}

	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("failed to generate recovery token: %w", err)
	}
	now := s.now()
	if err := s.recovery.Create(ctx, &model.RecoveryToken{
		Token:     token,
		UserID:    cred.UserID,
		ExpiresAt: now.Add(s.config.RecoveryTokenTTL),
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("failed to save recovery token: %w", err)
	}

	q := target.Query()
	q.Set("token", token)
	q.Set("type", "recovery")
	target.RawQuery = q.Encode()

	if err := s.mailer.SendRecovery(ctx, cred.Email, target.String()); err != nil {
		return fmt.Errorf("failed to send recovery mail: %w", err)
	}
	return nil
}

// recoveryTarget はredirectToを検証し、再設定リンクの基になるURLを返す。
// スキーム・ホスト・パスが設定値と一致する場合のみ受け付け、クエリは引き継ぐ。
func (s *Service) recoveryTarget(redirectTo string) (*url.URL, error) {
	fixed, err := url.Parse(s.config.RecoveryRedirectURL)
	if err != nil || (fixed.Scheme != "http" && fixed.Scheme != "https") || fixed.Host == "" {
		return nil, model.NewAuthFailureError(msgInvalidRedirect, err)
	}
	if redirectTo == "" {
		return fixed, nil
	}

	target, err := url.Parse(redirectTo)
	if err != nil {
		return nil, model.NewAuthFailureError(msgInvalidRedirect, err)
	}
	if !strings.EqualFold(target.Scheme, fixed.Scheme) ||
		!strings.EqualFold(target.Host, fixed.Host) ||
		target.Path != fixed.Path ||
		target.User != nil {
		slog.Warn("password recovery with foreign redirect rejected", slog.String("host", target.Host))
		return nil, model.NewAuthFailureError(msgInvalidRedirect, nil)
	}
	return target, nil
}

// CompletePasswordReset は再設定トークンを消費してパスワードを更新し、新しいセッションを発行する。
func (s *Service) CompletePasswordReset(ctx context.Context, token, newPassword string) (session *model.Session, err error) {
	defer func() { s.record("complete_recovery", err) }()

	if len(newPassword) < minPasswordLength {
		return nil, model.NewAuthFailureError(msgWeakPassword, nil)
	}
	rt, err := s.recovery.Consume(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to consume recovery token: %w", err)
	}
	if rt == nil {
		return nil, model.NewAuthFailureError(msgInvalidRecovery, nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.creds.UpdatePassword(ctx, rt.UserID, hash); err != nil {
		return nil, fmt.Errorf("failed to update password: %w", err)
	}

	session, err = s.createSession(ctx, rt.UserID)
	if err != nil {
		return nil, err
	}
	s.events.Publish(model.AuthEvent{
		Type: model.AuthEventPasswordRecovery, Session: session, UserID: rt.UserID, SessionID: session.ID,
	})
	return session, nil
}

// RevokeUser は指定ユーザーの全セッションを破棄し、各セッションの購読者にSIGNED_OUTを通知する。
// 破棄したセッション数を返す。
func (s *Service) RevokeUser(ctx context.Context, userID string) (n int, err error) {
	defer func() { s.record("revoke_user", err) }()

	revoked, err := s.sessions.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	for _, sess := range revoked {
		s.events.Publish(model.AuthEvent{
			Type: model.AuthEventSignedOut, UserID: sess.UserID, SessionID: sess.ID,
		})
	}
	return len(revoked), nil
}

// ExpireSessions は期限切れセッションと再設定トークンを削除し、
// 期限切れセッションの購読者にSIGNED_OUTを通知する。削除したセッション数を返す。
func (s *Service) ExpireSessions(ctx context.Context) (int, error) {
	expired, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}
	for _, sess := range expired {
		s.events.Publish(model.AuthEvent{
			Type: model.AuthEventSignedOut, UserID: sess.UserID, SessionID: sess.ID,
		})
	}

	tokens, err := s.recovery.DeleteExpired(ctx)
	if err != nil {
		return len(expired), fmt.Errorf("failed to expire recovery tokens: %w", err)
	}

	if len(expired) > 0 || tokens > 0 {
		slog.Info("expired auth records removed",
			slog.Int("sessions", len(expired)),
			slog.Int64("recovery_tokens", tokens),
		)
	}
	return len(expired), nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: s.expiry(),
		CreatedAt: s.now(),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

func (s *Service) expiry() time.Time {
	return s.now().Add(time.Duration(s.config.SessionMaxAge) * time.Second)
}

func (s *Service) record(operation string, err error) {
	if s.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	s.metrics.RecordAuthOperation(operation, result)
}

// normalizeEmail はメールアドレスを検証し、前後の空白を除去して小文字化する。
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewAuthFailureError(msgInvalidEmail, err)
	}
	return email, nil
}

// generateToken は暗号的に安全なランダムトークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
