package middleware

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimit ограничивает число запросов субъекта за фиксированное
// окно. Ключ - аккаунт из токена, для анонимных запросов - IP.
// Счётчик живёт в redis, ошибка redis запрос не блокирует.
func RateLimit(rdb *redis.Client, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := remoteIP(r)
			if p, ok := PrincipalFrom(r.Context()); ok {
				subject = p.AccountID
			}
			key := fmt.Sprintf("reqs_%s", subject)

			count, err := rdb.Incr(r.Context(), key).Result()
			if err == nil {
				if count == 1 {
					rdb.Expire(r.Context(), key, window)
				}
				if count > int64(limit) {
					http.Error(w, "Too many requests", http.StatusTooManyRequests)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
