package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{
			name: "середина месяца",
			t:    time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC),
			want: "2026-08",
		},
		{
			name: "последняя секунда месяца",
			t:    time.Date(2026, 8, 31, 23, 59, 59, 0, time.UTC),
			want: "2026-08",
		},
		{
			name: "другой пояс приводится к UTC",
			t:    time.Date(2026, 9, 1, 1, 30, 0, 0, time.FixedZone("MSK", 3*3600)),
			want: "2026-08",
		},
		{
			name: "декабрь",
			t:    time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC),
			want: "2025-12",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.t))
		})
	}
}

func TestNextReset(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want time.Time
	}{
		{
			name: "внутри месяца",
			t:    time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC),
			want: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "переход через год",
			t:    time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "первое число месяца",
			t:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextReset(tt.t))
		})
	}
}
