package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func userRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
	return req.WithContext(ContextWithUserID(req.Context(), userID))
}

func ipRequest(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/v1/token", nil)
	req.RemoteAddr = remoteAddr
	return req
}

// --- GeneralMiddleware (API全般) のテスト ---

func TestGeneralMiddleware_AllowsRequestsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate: 2, GeneralBurst: 5,
		AuthRate: 1, AuthBurst: 1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, userRequest("user-1"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestGeneralMiddleware_Returns429WithRetryAfter(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate: 0.5, GeneralBurst: 1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, userRequest("user-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("1回目 status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, userRequest("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("2回目 status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter != 2 {
		t.Errorf("Retry-After = %q, want 2", w.Header().Get("Retry-After"))
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスのJSONデコードに失敗: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" || body.Category != "system" || body.Action == "" {
		t.Errorf("レスポンスボディが不正: %+v", body)
	}
}

func TestGeneralMiddleware_IsolatesUsers(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{GeneralRate: 0.1, GeneralBurst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for _, user := range []string{"user-a", "user-b"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, userRequest(user))
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want %d", user, w.Code, http.StatusOK)
		}
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("GeneralLimiterCount() = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestGeneralMiddleware_NoUserID_Returns401(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/incidents", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- AuthMiddleware (送信元IPごと) のテスト ---

func TestAuthMiddleware_LimitsPerClientIP(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{AuthRate: 0.1, AuthBurst: 2, CleanupInterval: time.Minute})
	defer rl.Stop()

	handler := rl.AuthMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, ipRequest("192.0.2.10:40000"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	// 同一IPの別ポートも同じバケット
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, ipRequest("192.0.2.10:40001"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// 別IPは独立
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, ipRequest("198.51.100.7:40000"))
	if w.Code != http.StatusOK {
		t.Errorf("別IP status = %d, want %d", w.Code, http.StatusOK)
	}
	if rl.AuthLimiterCount() != 2 {
		t.Errorf("AuthLimiterCount() = %d, want 2", rl.AuthLimiterCount())
	}
}

func TestAuthMiddleware_IndependentFromGeneralLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		AuthRate: 0.1, AuthBurst: 1,
		GeneralRate: 0.1, GeneralBurst: 1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	authHandler := rl.AuthMiddleware()(okHandler())
	generalHandler := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	authHandler.ServeHTTP(w, ipRequest("192.0.2.1:1234"))
	if w.Code != http.StatusOK {
		t.Fatalf("auth status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	generalHandler.ServeHTTP(w, userRequest("user-1"))
	if w.Code != http.StatusOK {
		t.Errorf("認証の制限がAPI全般に影響しています: status = %d", w.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := map[string]string{
		"192.0.2.1:8080":    "192.0.2.1",
		"[2001:db8::1]:443": "2001:db8::1",
		"unix-socket":       "unix-socket",
	}
	for addr, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		if got := clientIP(req); got != want {
			t.Errorf("clientIP(%q) = %q, want %q", addr, got, want)
		}
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		AuthRate: 1, AuthBurst: 1,
		GeneralRate: 1, GeneralBurst: 1,
		CleanupInterval: time.Hour,
	})
	defer rl.Stop()

	rl.auth.get("192.0.2.1")
	rl.general.get("user-1")

	rl.auth.limiters["192.0.2.1"].lastAccess = time.Now().Add(-3 * time.Hour)
	rl.general.limiters["user-1"].lastAccess = time.Now().Add(-3 * time.Hour)
	rl.general.get("user-2")

	rl.cleanup()

	if rl.AuthLimiterCount() != 0 {
		t.Errorf("AuthLimiterCount() = %d, want 0", rl.AuthLimiterCount())
	}
	if rl.GeneralLimiterCount() != 1 {
		t.Errorf("GeneralLimiterCount() = %d, want 1", rl.GeneralLimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.AuthRate != rate.Limit(20.0/60.0) || cfg.AuthBurst != 20 {
		t.Errorf("auth = (%v, %d), want (%v, 20)", cfg.AuthRate, cfg.AuthBurst, rate.Limit(20.0/60.0))
	}
	if cfg.GeneralRate != rate.Limit(2) || cfg.GeneralBurst != 120 {
		t.Errorf("general = (%v, %d), want (2, 120)", cfg.GeneralRate, cfg.GeneralBurst)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v, want 5m", cfg.CleanupInterval)
	}
}
