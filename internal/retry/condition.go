package retry

import (
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

var ErrInvalidCondition = errors.New("invalid retry condition")

// Conditions selects which responses and transport errors are retried.
//
// The names follow Envoy's retry_on vocabulary:
// https://www.envoyproxy.io/docs/envoy/latest/configuration/http/http_filters/router_filter#x-envoy-retry-on
type Conditions struct {
	serverError    bool
	gatewayError   bool
	connectFailure bool
	retriable4xx   bool
	throttled      bool
	statusCodes    []int
}

// DefaultConditions fits object storage: S3 reports throttling as 503
// SlowDown and conflicting writes as 409.
func DefaultConditions() *Conditions {
	return &Conditions{
		gatewayError:   true,
		connectFailure: true,
		retriable4xx:   true,
		throttled:      true,
	}
}

// ParseConditions reads a comma separated list such as
// "gateway-error,connect-failure,429".
func ParseConditions(s string) (*Conditions, error) {
	c := &Conditions{}
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		switch field {
		case "":
		case "5xx":
			c.serverError = true
		case "gateway-error":
			c.gatewayError = true
		case "connect-failure":
			c.connectFailure = true
		case "retriable-4xx":
			c.retriable4xx = true
		case "throttled":
			c.throttled = true
		default:
			statusCode, err := strconv.Atoi(field)
			if err != nil || statusCode < 100 || statusCode > 599 {
				return nil, xerrors.Errorf("%q: %w", field, ErrInvalidCondition)
			}
			c.statusCodes = append(c.statusCodes, statusCode)
		}
	}
	return c, nil
}

func (c *Conditions) String() string {
	var fields []string
	if c.serverError {
		fields = append(fields, "5xx")
	}
	if c.gatewayError {
		fields = append(fields, "gateway-error")
	}
	if c.connectFailure {
		fields = append(fields, "connect-failure")
	}
	if c.retriable4xx {
		fields = append(fields, "retriable-4xx")
	}
	if c.throttled {
		fields = append(fields, "throttled")
	}
	for _, statusCode := range c.statusCodes {
		fields = append(fields, strconv.Itoa(statusCode))
	}
	return strings.Join(fields, ",")
}

// RetryResponse follows
// https://github.com/envoyproxy/envoy/blob/70d6ec1df6384118cf2fa2f02c0041edb76b2377/source/common/router/retry_state_impl.cc#L387
// with throttling added.
func (c *Conditions) RetryResponse(response *http.Response) bool {
	code := response.StatusCode
	switch {
	case c.serverError && code >= 500 && code < 600:
		return true
	case c.gatewayError && code >= 502 && code < 505:
		return true
	case c.retriable4xx && code == http.StatusConflict:
		return true
	case c.throttled && (code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable):
		return true
	}
	return slices.Contains(c.statusCodes, code)
}

// RetryError reports whether a transport error is a disconnect, reset or
// temporary failure worth another attempt.
func (c *Conditions) RetryError(err error) bool {
	if !c.connectFailure && !c.serverError {
		return false
	}

	type temporary interface{ Temporary() bool }
	var terr temporary
	if errors.As(err, &terr) && terr.Temporary() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
