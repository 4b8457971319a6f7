package common

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const NA = "N/A"

var snowflakeNode *snowflake.Node

func init() {
	var err error
	snowflakeNode, err = snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
}

// UUIDint64 returns a snowflake-based unique int64 id.
func UUIDint64() int64 {
	return snowflakeNode.Generate().Int64()
}

// Sha256Hex returns the hex sha256 digest of src.
func Sha256Hex(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}

var nonDigitRegex = regexp.MustCompile(`[^0-9]`)

// NormalizePhone strips every non-digit character from a phone number.
func NormalizePhone(phone string) string {
	return nonDigitRegex.ReplaceAllString(strings.TrimSpace(phone), "")
}

// IfEmptyStr returns defval when src is empty.
func IfEmptyStr(src string, defval string) string {
	if src == "" {
		return defval
	}
	return src
}

// DateString formats t as a calendar-day key (local time).
func DateString(t time.Time) string {
	return t.Format("2006-01-02")
}

// Today returns the current calendar-day key.
func Today() string {
	return DateString(time.Now())
}
