package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTime(t *testing.T) {
	if tm, ok := ParseTime("2025-01-02T03:04:05Z"); !ok || tm.UTC().Hour() != 3 {
		t.Fatalf("rfc3339 parse failed: %v %v", tm, ok)
	}
	if tm, ok := ParseTime("1735786800"); !ok || tm.Unix() != 1735786800 {
		t.Fatalf("unix parse failed: %v %v", tm, ok)
	}
	if _, ok := ParseTime("not-a-time"); ok {
		t.Fatal("expected parse failure")
	}
	if _, ok := ParseTime(""); ok {
		t.Fatal("expected empty string to fail")
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, def, ParseTimeDefault("garbage", def))
	assert.NotEqual(t, def, ParseTimeDefault("2025-06-01T00:00:00Z", def))
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseDuration("5s", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("bogus", time.Minute))
}

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 42, ParseIntDefault("42", 7))
	assert.Equal(t, 7, ParseIntDefault("", 7))
	assert.Equal(t, 7, ParseIntDefault("x", 7))
}
