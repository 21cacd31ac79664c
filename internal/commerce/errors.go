package commerce

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"henry/internal/normalize"
)

// maxBodyMessage bounds, in runes, how much of an unstructured error body is kept.
const maxBodyMessage = 200

// ServiceError is a failed commerce call: a non-2xx status or a body reporting success=false.
type ServiceError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("commerce %s failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("commerce %s failed with status %d: %s", e.Op, e.StatusCode, e.Message)
}

func newServiceError(op string, status int, raw any, body []byte) *ServiceError {
	msg, ok := normalize.FindString(raw, []string{"error", "data"}, messageKeys...)
	if !ok {
		msg = truncateRunes(strings.TrimSpace(string(body)), maxBodyMessage)
	}
	return &ServiceError{Op: op, StatusCode: status, Message: msg}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
