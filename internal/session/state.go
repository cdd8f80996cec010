package session

import "github.com/hitoshi/civicdesk/internal/model"

// State はManagerの状態を表す。
type State int

const (
	StateUninitialized State = iota
	StateRestoring
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRestoring:
		return "restoring"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	}
	return "unknown"
}

// Snapshot はManagerの状態の読み取り専用コピー。
type Snapshot struct {
	State   State
	Session *model.Session
	// Profile は認証済みユーザーのプロフィール。取得できなかった場合はnil。
	Profile *model.Profile
	// Loading はセッション復元中またはプロフィール取得中にtrue。
	Loading bool
	// Err は直近のプロフィール取得で発生したエラー。
	Err error
}

// Authenticated は有効なセッションを持つかどうかを返す。
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.Session != nil
}

func (s Snapshot) clone() Snapshot {
	c := s
	if s.Session != nil {
		sess := *s.Session
		c.Session = &sess
	}
	if s.Profile != nil {
		p := *s.Profile
		c.Profile = &p
	}
	return c
}
