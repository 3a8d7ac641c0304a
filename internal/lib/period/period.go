// Package period вычисляет ключ календарного месяца для счётчиков
// использования. Ключ всегда берётся в одном опорном часовом поясе (UTC),
// чтобы вызывающие стороны из разных поясов не разъезжались по периодам.
package period

import "time"

// Key возвращает ключ периода для момента t, например "2026-08".
func Key(t time.Time) string {
	return t.In(time.UTC).Format("2006-01")
}

// NextReset возвращает момент сброса счётчика — начало следующего
// календарного месяца в опорном поясе.
func NextReset(t time.Time) time.Time {
	t = t.In(time.UTC)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
