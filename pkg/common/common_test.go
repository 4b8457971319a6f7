package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+55 (41) 99999-0000": "5541999990000",
		"5541999990000":       "5541999990000",
		"55.41.99999.0000":    "5541999990000",
		"abc":                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePhone(in), "input %q", in)
	}
}

func TestSha256HexIsStable(t *testing.T) {
	assert.Equal(t, Sha256Hex("abc"), Sha256Hex("abc"))
	assert.NotEqual(t, Sha256Hex("abc"), Sha256Hex("abd"))
	assert.Len(t, Sha256Hex("abc"), 64)
}

func TestDateString(t *testing.T) {
	ts := time.Date(2025, 3, 9, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-09", DateString(ts))
}

func TestUUIDint64Unique(t *testing.T) {
	seen := map[int64]bool{}
	for i := 0; i < 100; i++ {
		id := UUIDint64()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
