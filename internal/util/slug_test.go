package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"spaces", "Calendar Events", "calendar-events"},
		{"separators", "my_personal/2026", "my-personal-2026"},
		{"symbols dropped", "🎉 Holidays!", "holidays"},
		{"dash runs", "--a--b--", "a-b"},
		{"accents dropped", "Fête", "fte"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.input))
		})
	}
}

func TestSlugOr(t *testing.T) {
	assert.Equal(t, "calendar-events", SlugOr("!!!", "calendar-events"))
	assert.Equal(t, "work", SlugOr("Work", "calendar-events"))
}
