package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
	err          error
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, r.err }

// Executor インターフェースに対するモック実装
type mockExecutor struct {
	mu     sync.Mutex
	calls  int
	query  string
	args   []interface{}
	result sql.Result
	err    error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.query = query
	m.args = args
	return m.result, m.err
}

func (m *mockExecutor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockRecorder struct {
	mu    sync.Mutex
	total int
	calls int
}

func (r *mockRecorder) RecordTokensScrubbed(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total += count
	r.calls++
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// findLogField はJSONログ行からkeyを持つ最初の値を返す。
func findLogField(t *testing.T, buf *bytes.Buffer, key string) (interface{}, bool) {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func TestNewTokenScrubJob_DefaultRetention(t *testing.T) {
	var buf bytes.Buffer
	job := NewTokenScrubJob(&mockExecutor{}, newTestLogger(&buf), nil)

	if job == nil {
		t.Fatal("NewTokenScrubJob は nil を返すべきではない")
	}
	if job.RetentionDays != DefaultRetentionDays {
		t.Errorf("RetentionDays = %d, want %d", job.RetentionDays, DefaultRetentionDays)
	}
}

func TestTokenScrubJob_Run_NullsTokensOnly(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 1}}
	job := NewTokenScrubJob(mock, newTestLogger(&buf), nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	// トークン列のみを更新し、紐付け行は削除しないこと
	if !strings.Contains(mock.query, "UPDATE accounts") {
		t.Errorf("クエリに 'UPDATE accounts' が含まれていない: %s", mock.query)
	}
	if strings.Contains(mock.query, "DELETE") {
		t.Errorf("紐付け行を削除してはならない: %s", mock.query)
	}
	for _, want := range []string{"access_token = NULL", "id_token = NULL", "expires_at"} {
		if !strings.Contains(mock.query, want) {
			t.Errorf("クエリに %q が含まれていない: %s", want, mock.query)
		}
	}
	// リフレッシュトークンには触れない
	if strings.Contains(mock.query, "refresh_token") {
		t.Errorf("refresh_tokenは消去対象外: %s", mock.query)
	}
}

func TestTokenScrubJob_Run_UsesIntervalParameter(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewTokenScrubJob(mock, newTestLogger(&buf), nil)
	job.RetentionDays = 7

	_ = job.Run(context.Background())

	if len(mock.args) != 1 {
		t.Fatalf("引数の数 = %d, want 1", len(mock.args))
	}
	if got, _ := mock.args[0].(string); got != "7 days" {
		t.Errorf("interval = %q, want %q", got, "7 days")
	}
}

func TestTokenScrubJob_Run_LogsAndRecordsCount(t *testing.T) {
	var buf bytes.Buffer
	recorder := &mockRecorder{}
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 42}}
	job := NewTokenScrubJob(mock, newTestLogger(&buf), recorder)

	_ = job.Run(context.Background())

	if v, ok := findLogField(t, &buf, "scrubbed_count"); !ok || v != float64(42) {
		t.Errorf("ログに scrubbed_count=42 が記録されていない。ログ出力: %s", buf.String())
	}
	if v, ok := findLogField(t, &buf, "retention_days"); !ok || v != float64(DefaultRetentionDays) {
		t.Errorf("ログに retention_days が記録されていない。ログ出力: %s", buf.String())
	}
	if _, ok := findLogField(t, &buf, "duration_ms"); !ok {
		t.Errorf("ログに duration_ms が記録されていない。ログ出力: %s", buf.String())
	}
	if recorder.total != 42 {
		t.Errorf("recorded = %d, want 42", recorder.total)
	}
}

func TestTokenScrubJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 0}}
	job := NewTokenScrubJob(mock, newTestLogger(&buf), nil)

	// 対象がなくても繰り返し実行できること
	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
	}
	if v, ok := findLogField(t, &buf, "scrubbed_count"); !ok || v != float64(0) {
		t.Errorf("0件でもログに scrubbed_count=0 が記録されるべき。ログ出力: %s", buf.String())
	}
}

func TestTokenScrubJob_Run_ReturnsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	recorder := &mockRecorder{}
	mock := &mockExecutor{err: sql.ErrConnDone}
	job := NewTokenScrubJob(mock, newTestLogger(&buf), recorder)

	err := job.Run(context.Background())
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("err = %v, want wrapped sql.ErrConnDone", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
	if recorder.calls != 0 {
		t.Error("失敗時は件数を記録しないこと")
	}
}

func TestTokenScrubJob_Run_RowsAffectedError(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{err: errors.New("driver does not support RowsAffected")}}
	job := NewTokenScrubJob(mock, newTestLogger(&buf), nil)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("RowsAffected の失敗はエラーとして返すべき")
	}
}

// TestTokenScrubJob_RunEvery_StopsOnCancel は起動直後に1回実行し、キャンセルで終了することを検証する。
func TestTokenScrubJob_RunEvery_StopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewTokenScrubJob(mock, slog.New(slog.NewJSONHandler(&lockedBuffer{buf: &buf}, nil)), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.RunEvery(ctx, time.Hour)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for mock.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if mock.callCount() == 0 {
		t.Fatal("RunEvery は起動直後に Run を実行するべき")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後に RunEvery が終了しない")
	}
}

// lockedBuffer はgoroutineから書き込まれるログ用のbytes.Buffer。
type lockedBuffer struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}
