package resilience

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
)

// TransientError marks a failure worth retrying: throttling, an upstream
// outage or a dropped connection. RetryAfter carries the server's hint, if any.
type TransientError struct {
	Err        error
	StatusCode int
	RetryAfter time.Duration
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError marks err as retryable. statusCode is 0 when the failure
// did not come from an HTTP response.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// Throttled reports whether the upstream asked us to slow down.
func (e *TransientError) Throttled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// CheckResponse turns a non-200 response into an error named after source.
// Throttling and gateway failures come back as *TransientError carrying the
// Retry-After hint; everything else is permanent. The body is left open.
func CheckResponse(resp *http.Response, source string) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	err := eris.Errorf("%s returned status %d", source, resp.StatusCode)
	if !retryableStatus(resp.StatusCode) {
		return err
	}
	te := NewTransientError(err, resp.StatusCode)
	te.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	return te
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// parseRetryAfter accepts both forms of the header: delay seconds or an
// HTTP date. Unparseable or past values yield 0.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	at, err := http.ParseTime(v)
	if err != nil || !at.After(now) {
		return 0
	}
	return at.Sub(now)
}

// networkHiccups are the messages HTTP clients produce for connection-level
// failures that lose their typed cause on the way up.
var networkHiccups = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"unexpected eof",
}

// IsTransient reports whether err is worth retrying: an explicit
// TransientError anywhere in the chain, a network timeout, or a dropped
// connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		if errors.Is(err, errno) {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, s := range networkHiccups {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// retryAfterHint extracts the server-requested wait from err, or 0.
func retryAfterHint(err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}
