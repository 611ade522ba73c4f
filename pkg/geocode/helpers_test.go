package geocode

import (
	"net/http"
	"net/url"

	"golang.org/x/time/rate"
)

func unthrottled() *rate.Limiter { return rate.NewLimiter(rate.Inf, 1) }

// redirectTo returns a client that sends every request aimed at the host of
// upstream to the test server instead, keeping path and query. Other hosts
// pass through untouched.
func redirectTo(testServer, upstream string) *http.Client {
	srv, err := url.Parse(testServer)
	if err != nil {
		panic(err)
	}
	up, err := url.Parse(upstream)
	if err != nil {
		panic(err)
	}
	return &http.Client{Transport: hostRedirect{from: up.Host, to: srv}}
}

type hostRedirect struct {
	from string
	to   *url.URL
}

func (h hostRedirect) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host != h.from {
		return http.DefaultTransport.RoundTrip(req)
	}
	out := req.Clone(req.Context())
	out.URL.Scheme = h.to.Scheme
	out.URL.Host = h.to.Host
	out.Host = h.to.Host
	return http.DefaultTransport.RoundTrip(out)
}
