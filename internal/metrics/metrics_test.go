package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestNewCollector_DuplicateRegistration_Panics は同一レジストリへの二重登録がpanicすることを検証する。
func TestNewCollector_DuplicateRegistration_Panics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	_ = NewCollector(reg)
}

// TestRecordLogin_LabelsByMethodAndOutcome はログイン結果がmethodとoutcomeで区別されることを検証する。
func TestRecordLogin_LabelsByMethodAndOutcome(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordLogin("password", OutcomeSuccess)
	c.RecordLogin("password", OutcomeFailure)
	c.RecordLogin("password", OutcomeFailure)
	c.RecordLogin("github", OutcomeSuccess)

	if got := testutil.ToFloat64(c.logins.WithLabelValues("password", OutcomeFailure)); got != 2 {
		t.Errorf("credentials/failure = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.logins.WithLabelValues("github", OutcomeSuccess)); got != 1 {
		t.Errorf("github/success = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.logins); got != 3 {
		t.Errorf("series count = %d, want 3", got)
	}
}

// TestRecordRegistration_IncrementsCounter は登録結果カウンタが増加することを検証する。
func TestRecordRegistration_IncrementsCounter(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordRegistration(OutcomeSuccess)
	c.RecordRegistration(OutcomeConflict)

	if got := testutil.ToFloat64(c.registrations.WithLabelValues(OutcomeConflict)); got != 1 {
		t.Errorf("conflict = %v, want 1", got)
	}
}

// TestRecordFollowToggle_IncrementsCounter はフォロー切り替えカウンタが増加することを検証する。
func TestRecordFollowToggle_IncrementsCounter(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordFollowToggle("followed")
	c.RecordFollowToggle("unfollowed")
	c.RecordFollowToggle("followed")

	if got := testutil.ToFloat64(c.followToggles.WithLabelValues("followed")); got != 2 {
		t.Errorf("followed = %v, want 2", got)
	}
}

// TestRecordTokensScrubbed_AddsCount は消去トークン数が加算されることを検証する。
func TestRecordTokensScrubbed_AddsCount(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordTokensScrubbed(3)
	c.RecordTokensScrubbed(0)
	c.RecordTokensScrubbed(2)

	if got := testutil.ToFloat64(c.tokensScrubbed); got != 5 {
		t.Errorf("tokens scrubbed = %v, want 5", got)
	}
}

// TestRecordHTTPStatus_LabelsByStatusCode はステータスコード別に記録されることを検証する。
func TestRecordHTTPStatus_LabelsByStatusCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(409)

	expected := `
# HELP konnect_http_status_total HTTPステータスコード別のレスポンス数
# TYPE konnect_http_status_total counter
konnect_http_status_total{status_code="200"} 1
konnect_http_status_total{status_code="409"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "konnect_http_status_total"); err != nil {
		t.Error(err)
	}
}

// TestHTTPMiddleware_RecordsRoutePatternAndStatus はchiのルートパターンとステータスが記録されることを検証する。
func TestHTTPMiddleware_RecordsRoutePatternAndStatus(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(NewHTTPMiddleware(c))
	r.Get("/api/profile/{username}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, name := range []string{"minh", "lan"} {
		req := httptest.NewRequest(http.MethodGet, "/api/profile/"+name, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("404")); got != 2 {
		t.Errorf("404 count = %v, want 2", got)
	}
	// ユーザー名ごとにラベルが増えないこと
	if got := testutil.CollectAndCount(c.requestLatency); got != 1 {
		t.Errorf("latency series = %d, want 1", got)
	}
}

// TestHTTPMiddleware_ImplicitOK はWriteHeader未呼び出し時に200として記録されることを検証する。
func TestHTTPMiddleware_ImplicitOK(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	handler := NewHTTPMiddleware(c)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("200")); got != 1 {
		t.Errorf("200 count = %v, want 1", got)
	}
}

// TestNopCollector_DoesNotPanic はNopCollectorの全メソッドが安全に呼べることを検証する。
func TestNopCollector_DoesNotPanic(t *testing.T) {
	var c MetricsCollector = NopCollector{}
	c.RecordLogin("password", OutcomeSuccess)
	c.RecordRegistration(OutcomeSuccess)
	c.RecordFollowToggle("followed")
	c.RecordHTTPStatus(200)
	c.RecordRequestLatency("/", time.Millisecond)
	c.RecordTokensScrubbed(1)
}
