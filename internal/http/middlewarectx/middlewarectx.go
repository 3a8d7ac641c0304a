// Package middlewarectx содержит HTTP middleware движка сверки и ключи
// контекста запроса. Здесь фиксируется момент приёма запроса: ядро
// никогда не читает часы само, время решения всегда передаётся
// параметром с границы.
package middlewarectx

import (
	"context"
	"net/http"
	"time"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// RequestTime — ключ момента приёма запроса в контексте.
const RequestTime Key = "request_time"

// WithRequestTime возвращает middleware, который кладёт момент приёма
// запроса в контекст. Все решения по сроку членства и квоте внутри
// запроса считаются относительно этого момента.
func WithRequestTime() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), RequestTime, time.Now().UTC())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Now возвращает момент приёма запроса из контекста, либо текущее время,
// если middleware не был установлен.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(RequestTime).(time.Time); ok {
		return t
	}
	return time.Now().UTC()
}
