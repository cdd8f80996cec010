package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	AuthRate        rate.Limit    // 認証エンドポイントのレート（req/sec、送信元IPごと）
	AuthBurst       int           // 認証エンドポイントのバーストサイズ
	GeneralRate     rate.Limit    // API全般のレート（req/sec、ユーザーごと）
	GeneralBurst    int           // API全般のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 認証 20 req/min/IP、API全般 120 req/min/user。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(20, 120)
}

// NewRateLimiterConfig は1分あたりのリクエスト数からレート制限設定を生成する。
func NewRateLimiterConfig(authPerMinute, generalPerMinute int) RateLimiterConfig {
	return RateLimiterConfig{
		AuthRate:        rate.Limit(float64(authPerMinute) / 60.0),
		AuthBurst:       authPerMinute,
		GeneralRate:     rate.Limit(float64(generalPerMinute) / 60.0),
		GeneralBurst:    generalPerMinute,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyedLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet はキー（送信元IPまたはユーザーID）ごとのリミッター集合。
type limiterSet struct {
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	limiters map[string]*keyedLimiter
}

func newLimiterSet(r rate.Limit, burst int) *limiterSet {
	return &limiterSet{rate: r, burst: burst, limiters: make(map[string]*keyedLimiter)}
}

// get はキーのリミッターを取得または作成する。
func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if kl, ok := s.limiters[key]; ok {
		kl.lastAccess = time.Now()
		return kl.limiter
	}
	limiter := rate.NewLimiter(s.rate, s.burst)
	s.limiters[key] = &keyedLimiter{limiter: limiter, lastAccess: time.Now()}
	return limiter
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// evict は最終アクセスからttlを超えたエントリを削除する。
func (s *limiterSet) evict(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, kl := range s.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// RateLimiter は認証エンドポイントの送信元IPごとの制限と、
// 認証済みAPIのユーザーごとの制限を管理する。
type RateLimiter struct {
	config  RateLimiterConfig
	auth    *limiterSet
	general *limiterSet

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:  config,
		auth:    newLimiterSet(config.AuthRate, config.AuthBurst),
		general: newLimiterSet(config.GeneralRate, config.GeneralBurst),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// AuthMiddleware は認証エンドポイント（登録・ログイン・パスワード再設定）用の
// 送信元IPごとのレート制限ミドルウェアを返す。
func (rl *RateLimiter) AuthMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.auth.get(ip).Allow() {
				writeRateLimitResponse(w, rl.config.AuthRate)
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("limit_type", "auth"),
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// リクエストコンテキストにユーザーIDが含まれている必要がある（SessionMiddlewareの後に配置）。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if !rl.general.get(userID).Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuthLimiterCount は現在管理されている認証リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) AuthLimiterCount() int {
	return rl.auth.len()
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()
	rl.auth.evict(now, ttl)
	rl.general.evict(now, ttl)
}

// clientIP はリクエストの送信元IPを返す。
// リバースプロキシ配下ではchiのRealIPミドルウェアでRemoteAddrを補正しておく。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = int(math.Ceil(1.0 / float64(r)))
	}
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
