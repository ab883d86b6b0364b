// Package cleanup は外部アカウントトークンの定期消去ジョブを提供する。
// 有効期限から保持期間（デフォルト30日）を過ぎたaccess_tokenとid_tokenを
// 日次バッチでNULLにする。紐付け自体（provider, provider_account_id）は残す。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays はトークン保持日数のデフォルト値。
const DefaultRetentionDays = 30

// scrubQuery は期限切れトークンを消去する。
// idx_accounts_expires_at（access_token IS NOT NULLの部分インデックス）を利用する。
const scrubQuery = `UPDATE accounts
	SET access_token = NULL, id_token = NULL
	WHERE expires_at < now() - $1::interval
	  AND (access_token IS NOT NULL OR id_token IS NOT NULL)`

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ScrubRecorder は消去件数の記録先。metrics.MetricsCollectorの部分集合。
type ScrubRecorder interface {
	RecordTokensScrubbed(count int)
}

// TokenScrubJob は保持期間を過ぎた外部アカウントトークンの消去ジョブ。
// 何度実行しても結果が変わらない冪等な更新として設計されている。
type TokenScrubJob struct {
	db            Executor
	logger        *slog.Logger
	recorder      ScrubRecorder
	RetentionDays int // 有効期限切れ後にトークンを保持する日数（デフォルト: 30）
}

// NewTokenScrubJob は新しいTokenScrubJobを生成する。recorderはnil可。
func NewTokenScrubJob(db Executor, logger *slog.Logger, recorder ScrubRecorder) *TokenScrubJob {
	return &TokenScrubJob{
		db:            db,
		logger:        logger,
		recorder:      recorder,
		RetentionDays: DefaultRetentionDays,
	}
}

// Run は保持期間を過ぎたトークンを1回消去する。
// 冪等: 対象がない場合でもエラーにならない。
func (j *TokenScrubJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d days", j.RetentionDays)
	result, err := j.db.ExecContext(ctx, scrubQuery, interval)
	if err != nil {
		j.logger.Error("token scrub failed",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("failed to scrub account tokens: %w", err)
	}

	scrubbed, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("failed to read scrubbed row count",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to read scrubbed row count: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordTokensScrubbed(int(scrubbed))
	}

	j.logger.Info("token scrub completed",
		slog.Int64("scrubbed_count", scrubbed),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// RunEvery は起動直後に1回、その後intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。個々の実行エラーはログのみで継続する。
func (j *TokenScrubJob) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_ = j.Run(ctx)

		select {
		case <-ctx.Done():
			j.logger.Info("token scrub worker stopped")
			return
		case <-ticker.C:
		}
	}
}
