package app

import (
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

var ansiRe = regexp.MustCompile("\x1b\\[[0-9;]*m")

func applyColor(code, s string, color bool) string {
	if !color || s == "" {
		return s
	}
	return code + s + ansiReset
}

func colorizeHTTPMethod(method string, color bool) string {
	switch method {
	case "GET", "HEAD":
		return applyColor(ansiBlue, method, color)
	case "POST":
		return applyColor(ansiGreen, method, color)
	case "PUT", "PATCH":
		return applyColor(ansiYellow, method, color)
	case "DELETE":
		return applyColor(ansiRed, method, color)
	default:
		return applyColor(ansiMagenta, method, color)
	}
}

func colorizeStatusCode(status int, color bool) string {
	return colorizeStatusClass(statusClass(status), color, strconv.Itoa(status))
}

// colorizeStatusClass colors text (or the class itself when text is omitted) by status class.
func colorizeStatusClass(class string, color bool, text ...string) string {
	s := class
	if len(text) > 0 {
		s = text[0]
	}
	switch class {
	case "2xx":
		return applyColor(ansiGreen, s, color)
	case "3xx":
		return applyColor(ansiCyan, s, color)
	case "4xx":
		return applyColor(ansiYellow, s, color)
	case "5xx":
		return applyColor(ansiRed, s, color)
	default:
		return s
	}
}

func colorizeDurationMS(ms int64, color bool) string {
	s := strconv.FormatInt(ms, 10) + "ms"
	switch {
	case ms >= 1000:
		return applyColor(ansiRed, s, color)
	case ms >= 250:
		return applyColor(ansiYellow, s, color)
	default:
		return applyColor(ansiDim, s, color)
	}
}

func colorizeResult(result string, color bool) string {
	switch result {
	case "success", "ok", "delivered", "sent":
		return applyColor(ansiGreen, result, color)
	case "redirect":
		return applyColor(ansiCyan, result, color)
	case "client_error", "invalid", "dropped":
		return applyColor(ansiYellow, result, color)
	case "server_error", "error", "failed":
		return applyColor(ansiRed, result, color)
	default:
		return quoteIfNeeded(result)
	}
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		u := v.Uint64()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	case slog.KindDuration:
		return v.Duration().Milliseconds(), true
	case slog.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func stripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

// visualLen is the rune width of s once color codes are removed.
func visualLen(s string) int {
	return utf8.RuneCountInString(stripANSI(s))
}
