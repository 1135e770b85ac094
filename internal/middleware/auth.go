// Package middleware - промежуточные обработчики HTTP: разбор
// bearer-токена в субъекта запроса и ограничение частоты запросов.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Principal - аутентифицированный субъект запроса: стабильный
// идентификатор аккаунта и набор ролей из токена.
type Principal struct {
	AccountID string
	Roles     []string
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type ctxKey int

const principalKey ctxKey = 0

// WithPrincipal кладёт субъекта в контекст. Экспортируется для тестов
// обработчиков.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// Authorize проверяет подпись bearer-токена и, если переданы роли,
// требует хотя бы одну из них.
func Authorize(secret []byte, requiredRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "Missing or invalid token", http.StatusUnauthorized)
				return
			}

			principal, err := parseToken(strings.TrimPrefix(header, "Bearer "), secret)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			if len(requiredRoles) > 0 {
				allowed := false
				for _, role := range requiredRoles {
					if principal.HasRole(role) {
						allowed = true
						break
					}
				}
				if !allowed {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func parseToken(tokenStr string, secret []byte) (Principal, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, errors.New("invalid claims")
	}

	sid, _ := claims["sid"].(string)
	if sid == "" {
		return Principal{}, errors.New("missing sid claim")
	}

	var roles []string
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, v := range raw {
			if role, ok := v.(string); ok {
				roles = append(roles, role)
			}
		}
	}

	return Principal{AccountID: strings.ToLower(sid), Roles: roles}, nil
}
