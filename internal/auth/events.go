package auth

import (
	"log/slog"
	"sync"

	"github.com/hitoshi/civicdesk/internal/model"
)

// EventFilter は購読者が受け取る通知を選別する関数。nilの場合は全通知を受け取る。
type EventFilter func(model.AuthEvent) bool

// Broadcaster は認証状態変更通知を購読者にファンアウトする。
// 各購読者には発行順に届ける。バッファが溢れた購読者は切断する（チャネルをクローズする）。
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	buffer int
	logger *slog.Logger
}

type subscriber struct {
	filter EventFilter
	ch     chan model.AuthEvent
}

// NewBroadcaster はBroadcasterを生成する。bufferは購読者ごとのチャネル容量。
func NewBroadcaster(buffer int, logger *slog.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subs:   make(map[int]*subscriber),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe は通知チャネルと購読解除関数を返す。
// 購読解除後はチャネルがクローズされる。解除関数は複数回呼び出しても安全。
func (b *Broadcaster) Subscribe(filter EventFilter) (<-chan model.AuthEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{filter: filter, ch: make(chan model.AuthEvent, b.buffer)}
	b.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { b.remove(id) })
	}
}

// Publish は通知を全購読者に配送する。
func (b *Broadcaster) Publish(evt model.AuthEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		if sub.filter != nil && !sub.filter(evt) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.logger.Warn("auth event subscriber is too slow, disconnecting",
				slog.Int("subscriber_id", id),
				slog.String("event", string(evt.Type)),
			)
			delete(b.subs, id)
			close(sub.ch)
		}
	}
}

// SubscriberCount は現在の購読者数を返す。テストおよびメトリクス用。
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// ForSession は指定セッションに関する通知のみを通すフィルタを返す。
func ForSession(sessionID string) EventFilter {
	return func(evt model.AuthEvent) bool {
		if evt.SessionID == sessionID {
			return true
		}
		return evt.Session != nil && evt.Session.ID == sessionID
	}
}
