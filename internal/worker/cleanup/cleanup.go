// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// 期限切れのセッションと再設定トークンを削除し、
// 破棄されたセッションの購読者にはSIGNED_OUTが通知される。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionExpirer は期限切れセッションの削除を行う。auth.Serviceが満たす。
type SessionExpirer interface {
	// ExpireSessions は期限切れセッションを削除し、削除件数を返す。
	ExpireSessions(ctx context.Context) (int, error)
}

// Recorder は削除件数をメトリクスに記録する。
type Recorder interface {
	RecordSessionsExpired(count int)
}

// CleanupJob は期限切れセッションの削除ジョブ。
// 削除は冪等で、対象がない場合もエラーにならない。
type CleanupJob struct {
	expirer  SessionExpirer
	recorder Recorder
	logger   *slog.Logger
	Interval time.Duration // 実行間隔（デフォルト: 5分）
}

// NewCleanupJob は新しいCleanupJobを生成する。recorderはnilでもよい。
func NewCleanupJob(expirer SessionExpirer, recorder Recorder, logger *slog.Logger) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		expirer:  expirer,
		recorder: recorder,
		logger:   logger,
		Interval: 5 * time.Minute,
	}
}

// Run は期限切れセッションを1回削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.expirer.ExpireSessions(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordSessionsExpired(deleted)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行し、以降Intervalごとに実行する。
// ctxがキャンセルされるまでブロックする。実行失敗はログに記録して継続する。
func (j *CleanupJob) Start(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
