package incident

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/civicdesk/internal/model"
)

// Source は通報一覧の取得元。
type Source interface {
	// ListIncidents は全通報をカテゴリと通報者を結合した状態でcreated_at降順に返す。
	ListIncidents(ctx context.Context) ([]model.Incident, error)
}

// Options はBrowserの設定。
type Options struct {
	// OnSelect は通報が選択されたときに呼ばれる。nilの場合は何もしない。
	OnSelect func(model.Incident)
	Logger   *slog.Logger
}

// Browser は取得済みの通報一覧と絞り込み条件を保持し、絞り込み結果を提供する。
// 一覧・検索語・ステータス条件のいずれかが変わるたびに絞り込み結果を再計算する。
type Browser struct {
	source   Source
	onSelect func(model.Incident)
	logger   *slog.Logger

	mu       sync.RWMutex
	loadSeq  uint64
	all      []model.Incident
	criteria Criteria
	view     []model.Incident
	err      error
}

// NewBrowser はBrowserを生成する。初期状態は空の一覧、絞り込みなし。
func NewBrowser(source Source, opts Options) *Browser {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Browser{
		source:   source,
		onSelect: opts.OnSelect,
		logger:   logger,
		criteria: Criteria{Status: StatusAll},
		all:      []model.Incident{},
		view:     []model.Incident{},
	}
}

// Load は通報一覧を取得する。取得に失敗した場合はログに記録し、一覧を空にして
// Errで参照できるFetchFailureエラーを保持する。
// 複数のLoadが重なった場合は最後に開始したLoadの結果のみを反映する。
func (b *Browser) Load(ctx context.Context) {
	b.mu.Lock()
	b.loadSeq++
	seq := b.loadSeq
	b.mu.Unlock()

	list, err := b.source.ListIncidents(ctx)
	if list == nil {
		list = []model.Incident{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if seq != b.loadSeq {
		b.logger.Debug("discarding stale incident load", slog.Uint64("seq", seq), slog.Uint64("latest", b.loadSeq))
		return
	}
	if err != nil {
		b.logger.Error("failed to fetch incidents", slog.String("error", err.Error()))
		b.all = []model.Incident{}
		b.err = model.NewFetchFailureError(err)
		b.refresh()
		return
	}

	b.all = list
	b.err = nil
	b.refresh()
	b.logger.Debug("incidents loaded", slog.Int("total", len(list)), slog.Int("visible", len(b.view)))
}

// SetSearch は検索語を設定し、絞り込み結果を再計算する。
func (b *Browser) SetSearch(term string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.criteria.Search = term
	b.refresh()
}

// SetStatus はステータス条件を設定し、絞り込み結果を再計算する。
func (b *Browser) SetStatus(status StatusFilter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.criteria.Status = status
	b.refresh()
}

// Criteria は現在の絞り込み条件を返す。
func (b *Browser) Criteria() Criteria {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.criteria
}

// View は絞り込み結果のコピーを返す。
func (b *Browser) View() []model.Incident {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.Incident, len(b.view))
	copy(out, b.view)
	return out
}

// Rows は絞り込み結果を閲覧者に応じた表示用の行に変換して返す。
func (b *Browser) Rows(viewer *model.Profile) []Row {
	return Present(b.View(), viewer)
}

// Total は取得済みの通報件数（絞り込み前）を返す。
func (b *Browser) Total() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.all)
}

// Empty は絞り込み結果が空かどうかを返す。取得失敗時もtrue。
func (b *Browser) Empty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.view) == 0
}

// Err は直近の取得エラーを返す。
func (b *Browser) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}

// Select は絞り込み結果のindex番目の通報でOnSelectを呼び出す。
// 選択状態は保持しない。範囲外の場合はfalseを返す。
func (b *Browser) Select(index int) bool {
	b.mu.RLock()
	if index < 0 || index >= len(b.view) {
		b.mu.RUnlock()
		return false
	}
	selected := b.view[index]
	b.mu.RUnlock()

	if b.onSelect != nil {
		b.onSelect(selected)
	}
	return true
}

// refresh はb.muをロックした状態で呼び出す。
func (b *Browser) refresh() {
	b.view = Filter(b.all, b.criteria)
}
