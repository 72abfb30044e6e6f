package httpx

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Attempts is how many times Do tries a provider call.
const Attempts = 3

var defaultClient = &http.Client{
	Timeout: 10 * time.Second,
	Transport: &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxConnsPerHost:     100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	},
}

// Client is shared by outbound provider calls.
func Client() *http.Client { return defaultClient }

// Retryable reports whether a provider response status is worth retrying.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// Do sends the request built by newReq up to attempts times, backing off
// between tries while the failure is a transport error or a Retryable
// status. The last response or error is returned to the caller.
func Do(ctx context.Context, client *http.Client, attempts int, newReq func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	if attempts < 1 {
		attempts = 1
	}
	var (
		resp *http.Response
		err  error
	)
	for i := 0; i < attempts; i++ {
		if i > 0 {
			t := time.NewTimer(time.Duration(i) * 100 * time.Millisecond)
			select {
			case <-ctx.Done():
				t.Stop()
				return resp, err
			case <-t.C:
			}
			if resp != nil {
				resp.Body.Close()
				resp = nil
			}
		}
		req, rerr := newReq(ctx)
		if rerr != nil {
			return nil, rerr
		}
		resp, err = client.Do(req)
		if err == nil && !Retryable(resp.StatusCode) {
			return resp, nil
		}
	}
	return resp, err
}
