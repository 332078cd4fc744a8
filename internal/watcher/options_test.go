package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptions_Defaults(t *testing.T) {
	opts := Options{}
	opts.setDefaults()

	assert.True(t, opts.IgnoreHidden)
	assert.Equal(t, 500*time.Millisecond, opts.SettleDelay)
	assert.Contains(t, opts.IgnorePatterns, "*.part")
	assert.Equal(t, []string{".csv", ".ics", ".ical"}, opts.Extensions)
}

func TestOptions_CustomValues(t *testing.T) {
	opts := Options{
		SettleDelay:    200 * time.Millisecond,
		IgnorePatterns: []string{"*.bak"},
		Extensions:     []string{".csv"},
	}
	opts.setDefaults()

	assert.False(t, opts.IgnoreHidden)
	assert.Equal(t, 200*time.Millisecond, opts.SettleDelay)
	assert.Equal(t, []string{"*.bak"}, opts.IgnorePatterns)
	assert.Equal(t, []string{".csv"}, opts.Extensions)
}

func TestOptions_ShouldIgnore(t *testing.T) {
	opts := Options{}
	opts.setDefaults()

	tests := []struct {
		name   string
		path   string
		expect bool
	}{
		{"csv", "/inbox/holidays.csv", false},
		{"upper-case ics", "/inbox/Holidays.ICS", false},
		{"hidden", "/inbox/.holidays.csv", true},
		{"partial upload", "/inbox/holidays.csv.part", true},
		{"DS_Store", "/inbox/.DS_Store", true},
		{"wrong extension", "/inbox/notes.txt", true},
		{"no extension", "/inbox/README", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, opts.shouldIgnore(tt.path))
		})
	}
}

func TestOptions_ShouldIgnore_HiddenAllowed(t *testing.T) {
	opts := Options{IgnorePatterns: []string{}}
	opts.setDefaults()

	assert.False(t, opts.shouldIgnore("/inbox/.holidays.csv"))
}
