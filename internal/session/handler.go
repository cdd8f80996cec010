package session

import (
	"context"
	"log/slog"

	"github.com/hitoshi/civicdesk/internal/model"
)

// command はハンドラーへの内部要求。
type command struct {
	reloadUserID string
}

// resolution はセッションとプロフィールの解決結果。genは解決を開始した時点の世代。
type resolution struct {
	gen     uint64
	session *model.Session
	profile *model.Profile
	err     error
}

// sessionSource は解決対象のセッションを返す。
type sessionSource func(ctx context.Context) (*model.Session, error)

// run は通知と内部要求を到着順に処理するハンドラーループ。
// 状態を書き換えるのはこのgoroutineのみ。
func (m *Manager) run(ctx context.Context, events <-chan model.AuthEvent, unsubscribe func()) {
	ctx, cancelAll := context.WithCancel(ctx)
	defer func() {
		unsubscribe()
		cancelAll()
		close(m.stopped)
	}()

	var gen uint64
	cancelFetch := context.CancelFunc(func() {})

	// resolve は新しい世代で解決を開始する。以前の世代の取得はキャンセルされ、結果は破棄される。
	resolve := func(source sessionSource) {
		cancelFetch()
		gen++
		fctx, cancel := context.WithCancel(ctx)
		cancelFetch = cancel
		go m.resolve(fctx, gen, source)
	}

	resolve(m.probe)

	for {
		select {
		case <-m.done:
			cancelFetch()
			return
		case <-ctx.Done():
			return

		case evt, ok := <-events:
			if !ok {
				// 購読が切断された間の通知は失われているため、購読し直して現在のセッションを問い合わせる。
				m.logger.Warn("auth event stream closed, resubscribing")
				unsubscribe()
				events, unsubscribe = m.auth.Subscribe()
				m.update(func(s *Snapshot) { s.Loading = true })
				resolve(m.probe)
				continue
			}
			m.logger.Debug("auth event received", slog.String("event", string(evt.Type)))

			if evt.Session == nil {
				cancelFetch()
				gen++
				m.update(func(s *Snapshot) {
					s.State = StateAnonymous
					s.Session = nil
					s.Profile = nil
					s.Loading = false
					s.Err = nil
				})
				continue
			}

			sess := evt.Session
			m.update(func(s *Snapshot) {
				if s.Profile != nil && s.Profile.ID != sess.UserID {
					s.Profile = nil
				}
				s.State = StateAuthenticated
				s.Session = sess
				s.Loading = true
			})
			resolve(func(context.Context) (*model.Session, error) { return sess, nil })

		case cmd := <-m.commands:
			current := m.Snapshot()
			if current.Session == nil || current.Session.UserID != cmd.reloadUserID {
				continue
			}
			sess := current.Session
			m.update(func(s *Snapshot) { s.Loading = true })
			resolve(func(context.Context) (*model.Session, error) { return sess, nil })

		case r := <-m.results:
			if r.gen != gen {
				continue
			}
			m.apply(r)
		}
	}
}

// probe は起動時に保存済みセッションを問い合わせる。
func (m *Manager) probe(ctx context.Context) (*model.Session, error) {
	return m.auth.CurrentSession(ctx)
}

// resolve はセッションを確定し、対応するプロフィールを取得してハンドラーに返す。
func (m *Manager) resolve(ctx context.Context, gen uint64, source sessionSource) {
	r := resolution{gen: gen}

	sess, err := source(ctx)
	switch {
	case err != nil:
		m.logger.Warn("session restore failed", slog.String("error", err.Error()))
	case sess != nil:
		r.session = sess
		r.profile, r.err = m.fetchProfile(ctx, sess.UserID)
	}

	select {
	case m.results <- r:
	case <-ctx.Done():
	}
}

// fetchProfile はユーザーIDが完全一致するプロフィールを取得する。
// 取得失敗や不在はログに記録し、プロフィールなしとして扱う。
func (m *Manager) fetchProfile(ctx context.Context, userID string) (*model.Profile, error) {
	profile, err := m.profiles.ProfileByID(ctx, userID)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Error("failed to fetch profile",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}
	if profile == nil {
		consistencyErr := model.NewDataConsistencyError(userID)
		m.logger.Error("profile missing for authenticated user",
			slog.String("user_id", userID),
			slog.String("error", consistencyErr.Error()),
		)
		return nil, consistencyErr
	}
	return profile, nil
}

// apply は最新世代の解決結果を状態に反映する。Loadingはここで必ずfalseになる。
func (m *Manager) apply(r resolution) {
	m.update(func(s *Snapshot) {
		if r.session == nil {
			s.State = StateAnonymous
			s.Session = nil
			s.Profile = nil
			s.Err = nil
		} else {
			s.State = StateAuthenticated
			s.Session = r.session
			s.Profile = r.profile
			s.Err = r.err
		}
		s.Loading = false
	})

	if r.session != nil {
		m.logger.Info("session resolved",
			slog.String("user_id", r.session.UserID),
			slog.Bool("has_profile", r.profile != nil),
		)
	}
}
