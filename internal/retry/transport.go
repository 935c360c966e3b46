package retry

import (
	"io"
	"net/http"
	"time"

	"golang.org/x/xerrors"
)

// Transport retries requests on its Base round tripper. Requests with a body
// are only retried when http.Request.GetBody is set.
type Transport struct {
	Base       http.RoundTripper
	Backoff    Backoff
	Conditions *Conditions
}

func NewClient(base http.RoundTripper, backoff Backoff, conditions *Conditions) *http.Client {
	return &http.Client{
		Transport: &Transport{
			Base:       base,
			Backoff:    backoff,
			Conditions: conditions,
		},
	}
}

func (t *Transport) RoundTrip(request *http.Request) (*http.Response, error) {
	ctx := request.Context()

	for attempt := uint(0); ; attempt++ {
		if attempt > 0 {
			rewound, err := rewind(request)
			if err != nil {
				return nil, err
			}
			request = rewound
		}

		response, err := t.base().RoundTrip(request)
		if !t.shouldRetry(request, response, err) {
			return response, err
		}

		delay, stop := t.backoff().Delay(attempt)
		if stop {
			return response, err
		}
		if response != nil {
			_, _ = io.Copy(io.Discard, response.Body)
			_ = response.Body.Close()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (t *Transport) shouldRetry(request *http.Request, response *http.Response, err error) bool {
	if t.Conditions == nil {
		return false
	}
	if request.Body != nil && request.Body != http.NoBody && request.GetBody == nil {
		return false
	}
	if err != nil {
		return t.Conditions.RetryError(err)
	}
	return t.Conditions.RetryResponse(response)
}

func rewind(request *http.Request) (*http.Request, error) {
	if request.GetBody == nil {
		return request, nil
	}
	body, err := request.GetBody()
	if err != nil {
		return nil, xerrors.Errorf("failed to rewind request body: %w", err)
	}
	clone := request.Clone(request.Context())
	clone.Body = body
	return clone, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) backoff() Backoff {
	if t.Backoff != nil {
		return t.Backoff
	}
	return Never()
}
