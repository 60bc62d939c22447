// Package ratelimit interprets server rate-limit signals and paces outgoing
// requests. It reads the Retry-After header sent with 429 responses and
// provides an in-process Pacer built on golang.org/x/time/rate.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HeaderRetryAfter is the response header carrying the server's wait hint.
const HeaderRetryAfter = "Retry-After"

// maxRetryAfterSeconds is the largest delta that fits a time.Duration.
const maxRetryAfterSeconds = math.MaxInt64 / int64(time.Second)

// ParseRetryAfter interprets a Retry-After value, which is either a number
// of seconds or an HTTP date. For the date form the wait is the time left
// until that date, never negative. ok is false when the value is absent or
// unparseable.
func ParseRetryAfter(value string, now time.Time) (wait time.Duration, ok bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if isDigits(value) {
		seconds, err := strconv.ParseInt(value, 10, 64)
		if err != nil || seconds > maxRetryAfterSeconds {
			seconds = maxRetryAfterSeconds
		}
		return time.Duration(seconds) * time.Second, true
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	wait = at.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

// RetryAfterFromHeader reads and parses the Retry-After header.
func RetryAfterFromHeader(h http.Header, now time.Time) (time.Duration, bool) {
	if h == nil {
		return 0, false
	}
	return ParseRetryAfter(h.Get(HeaderRetryAfter), now)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
