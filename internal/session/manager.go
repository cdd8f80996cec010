// Package session はログインセッションとプロフィールのライフサイクルを管理する。
// バックエンドの認証状態変更通知に同期し、現在のセッションとプロフィールを
// 読み取り専用スナップショットとして公開する。
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/civicdesk/internal/model"
)

// AuthBackend はホスト型バックエンドの認証APIを表す。
type AuthBackend interface {
	// CurrentSession は保存済みの有効なセッションを返す。存在しない場合はnilを返す。
	CurrentSession(ctx context.Context) (*model.Session, error)
	// Subscribe は認証状態変更通知のチャネルと購読解除関数を返す。
	Subscribe() (<-chan model.AuthEvent, func())
	// SignUp は認証情報を登録する。userIDが空でない場合はそのIDで登録する。
	SignUp(ctx context.Context, email, password, userID string) (*model.Session, error)
	// SignIn はメールアドレスとパスワードで認証する。
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	// SignOut は現在のセッションを破棄する。
	SignOut(ctx context.Context) error
	// ResetPasswordForEmail はパスワード再設定メールの送信を要求する。
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
}

// ProfileStore はprofilesテーブルへのアクセスを表す。
type ProfileStore interface {
	// ProfileByID はIDが完全一致するプロフィールを返す。存在しない場合はnilを返す。
	ProfileByID(ctx context.Context, id string) (*model.Profile, error)
	// ProfileByEmail はメールアドレスでプロフィールを返す。
	// 有効なプロフィールを優先し、なければ論理削除済みを返す。存在しない場合はnilを返す。
	ProfileByEmail(ctx context.Context, email string) (*model.Profile, error)
	// InsertProfile はプロフィールを作成する。
	InsertProfile(ctx context.Context, profile *model.Profile) error
	// ReviveProfile は論理削除済みプロフィールを復活させ、氏名と電話番号を上書きする。
	ReviveProfile(ctx context.Context, id, fullName string, phone *string) error
}

// SignUpInput は新規登録の入力値。
type SignUpInput struct {
	Email    string
	Password string
	FullName string
	Phone    *string
}

// Options はManagerの設定。
type Options struct {
	// RedirectTo はパスワード再設定メールに埋め込む固定の遷移先URL。
	RedirectTo string
	Logger     *slog.Logger
}

// Manager はセッションとプロフィールの状態機械。
//
// 認証状態変更通知と起動時のセッション復元は1つのハンドラーgoroutineが到着順に処理する。
// プロフィール取得は非同期に行い、結果は発行時の世代が最新の場合のみ反映する。
type Manager struct {
	auth       AuthBackend
	profiles   ProfileStore
	redirectTo string
	logger     *slog.Logger

	mu       sync.RWMutex
	snap     Snapshot
	watchers map[int]chan Snapshot
	nextID   int

	commands chan command
	results  chan resolution

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// New はManagerを生成する。Startを呼ぶまで状態はUninitialized。
func New(auth AuthBackend, profiles ProfileStore, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		auth:       auth,
		profiles:   profiles,
		redirectTo: opts.RedirectTo,
		logger:     logger,
		snap:       Snapshot{State: StateUninitialized, Loading: true},
		watchers:   make(map[int]chan Snapshot),
		commands:   make(chan command, 4),
		results:    make(chan resolution),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Start は認証状態変更通知を購読し、保存済みセッションの復元を開始する。
// 2回目以降の呼び出しは何もしない。
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		select {
		case <-m.done:
			close(m.stopped)
			return
		default:
		}

		events, unsubscribe := m.auth.Subscribe()
		m.update(func(s *Snapshot) {
			s.State = StateRestoring
			s.Loading = true
		})
		go m.run(ctx, events, unsubscribe)
	})
}

// Close は通知の購読を解除し、ハンドラーを停止する。以降、状態は変化しない。
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.startOnce.Do(func() { close(m.stopped) })
		<-m.stopped

		m.mu.Lock()
		for id, ch := range m.watchers {
			delete(m.watchers, id)
			close(ch)
		}
		m.mu.Unlock()
	})
}

// Snapshot は現在の状態のコピーを返す。
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.clone()
}

// Watch は状態変化を受け取るチャネルと解除関数を返す。
// チャネルには常に最新のスナップショットのみが保持され、登録直後に現在の状態が届く。
func (m *Manager) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	m.mu.Lock()
	select {
	case <-m.done:
		ch <- m.snap.clone()
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	id := m.nextID
	m.nextID++
	m.watchers[id] = ch
	ch <- m.snap.clone()
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if w, ok := m.watchers[id]; ok {
				delete(m.watchers, id)
				close(w)
			}
		})
	}
}

// SignUp は新規登録を行う。
//
// 有効なプロフィールが既に存在する場合はバックエンドを変更せずにDuplicateAccountを返す。
// 論理削除済みプロフィールが存在する場合は同じIDで認証情報を登録し、プロフィールを復活させる。
// それ以外の場合は認証情報を登録し、citizenロールのプロフィールを作成する。
func (m *Manager) SignUp(ctx context.Context, in SignUpInput) error {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	existing, err := m.profiles.ProfileByEmail(ctx, email)
	if err != nil {
		return m.authFailure("sign up", err)
	}
	if existing != nil && !existing.IsDeleted {
		m.logger.Info("sign up rejected: active profile exists", slog.String("profile_id", existing.ID))
		return model.NewDuplicateAccountError(email)
	}

	if existing != nil {
		if _, err := m.auth.SignUp(ctx, email, in.Password, existing.ID); err != nil {
			return m.authFailure("sign up", err)
		}
		if err := m.profiles.ReviveProfile(ctx, existing.ID, in.FullName, in.Phone); err != nil {
			return m.authFailure("revive profile", err)
		}
		m.logger.Info("soft-deleted profile revived", slog.String("profile_id", existing.ID))
		m.reloadProfile(existing.ID)
		return nil
	}

	sess, err := m.auth.SignUp(ctx, email, in.Password, "")
	if err != nil {
		return m.authFailure("sign up", err)
	}
	if sess == nil {
		return m.authFailure("sign up", errors.New("backend returned no session"))
	}
	if err := m.profiles.InsertProfile(ctx, &model.Profile{
		ID:       sess.UserID,
		Email:    email,
		FullName: in.FullName,
		Phone:    in.Phone,
		Role:     model.RoleCitizen,
	}); err != nil {
		return m.authFailure("insert profile", err)
	}
	m.reloadProfile(sess.UserID)
	return nil
}

// SignIn はメールアドレスとパスワードでログインする。
// 状態は認証状態変更通知を経由して更新される。
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	if _, err := m.auth.SignIn(ctx, strings.TrimSpace(email), password); err != nil {
		return m.authFailure("sign in", err)
	}
	return nil
}

// SignOut はログアウトする。
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.auth.SignOut(ctx); err != nil {
		return m.authFailure("sign out", err)
	}
	return nil
}

// ResetPassword はパスワード再設定メールの送信を要求する。遷移先は固定。
func (m *Manager) ResetPassword(ctx context.Context, email string) error {
	if err := m.auth.ResetPasswordForEmail(ctx, strings.TrimSpace(email), m.redirectTo); err != nil {
		return m.authFailure("reset password", err)
	}
	return nil
}

func (m *Manager) authFailure(op string, err error) error {
	apiErr := model.AsAuthFailure(err)
	m.logger.Warn("auth operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	return apiErr
}

// reloadProfile は指定ユーザーのプロフィール再取得をハンドラーに依頼する。
// 登録直後の通知がプロフィール作成より先に処理された場合の取りこぼしを補う。
func (m *Manager) reloadProfile(userID string) {
	select {
	case m.commands <- command{reloadUserID: userID}:
	case <-m.done:
	default:
		m.logger.Warn("profile reload dropped", slog.String("user_id", userID))
	}
}

func (m *Manager) update(fn func(*Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn(&m.snap)
	next := m.snap.clone()
	for _, ch := range m.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}
