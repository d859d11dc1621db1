// Package fetch wraps outbound HTTP with fixed timeouts, authorization header
// injection and ETag / Last-Modified conditional requests.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mytimetablemaker/transit-sync/internal/models"
)

const defaultUserAgent = "transit-sync (+https://github.com/mytimetablemaker/transit-sync)"

// Options configures the HTTP client timeouts
type Options struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Timeout        time.Duration
	UserAgent      string
}

// DefaultOptions returns the timeouts used by the services
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    30 * time.Second,
		Timeout:        60 * time.Second,
		UserAgent:      defaultUserAgent,
	}
}

// Fetcher performs plain and conditional GET requests. Sessions are
// cookie-less.
type Fetcher struct {
	client       *http.Client // follows redirects
	manualClient *http.Client // stops at the first redirect
	userAgent    string
}

// Response is the result of a plain fetch
type Response struct {
	Body       []byte
	StatusCode int
	Header     http.Header
}

// ConditionalRequest describes a conditional GET. Empty validators are not sent.
type ConditionalRequest struct {
	URL           string
	ETag          string
	LastModified  string
	Authorization string
}

// ConditionalResult is either NotModified or an updated body with the
// validators the server returned
type ConditionalResult struct {
	NotModified  bool
	Body         []byte
	ETag         string
	LastModified string
	FinalURL     string
}

// New creates a Fetcher
func New(opts Options) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.ReadTimeout,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		manualClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: opts.UserAgent,
	}
}

// Fetch performs a GET, following redirects. A non-nil Response is returned
// for every status; callers decide what a non-200 means.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, authHeader string) (*Response, error) {
	req, err := f.newRequest(ctx, rawURL, authHeader)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		countError(rawURL)
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		countError(rawURL)
		return nil, fmt.Errorf("failed to read response from %s: %w", rawURL, err)
	}

	if resp.StatusCode == http.StatusOK {
		downloadCount.With(prometheus.Labels{"host": host(rawURL)}).Inc()
	} else {
		countError(rawURL)
	}

	return &Response{Body: body, StatusCode: resp.StatusCode, Header: resp.Header}, nil
}

// FetchOK is Fetch that turns any non-200 status into a NetworkError
func (f *Fetcher) FetchOK(ctx context.Context, rawURL, authHeader string) (*Response, error) {
	resp, err := f.Fetch(ctx, rawURL, authHeader)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &models.NetworkError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// FetchConditional sends If-None-Match / If-Modified-Since when validators
// are known. 304 yields NotModified; 200 yields the body and new validators;
// any other status is a NetworkError. One redirect hop is followed by hand
// so the conditional headers are re-sent and the validators captured from
// the final URL. Authorization follows the hop only to the same host or one
// of its subdomains, as net/http does for plain fetches.
func (f *Fetcher) FetchConditional(ctx context.Context, creq ConditionalRequest) (*ConditionalResult, error) {
	resp, err := f.doConditional(ctx, creq.URL, creq)
	if err != nil {
		return nil, err
	}
	finalURL := creq.URL

	if isRedirect(resp.StatusCode) {
		location := resp.Header.Get("Location")
		resp.Body.Close()
		if location == "" {
			countError(creq.URL)
			return nil, &models.NetworkError{URL: creq.URL, StatusCode: resp.StatusCode}
		}
		next, err := resolve(creq.URL, location)
		if err != nil {
			countError(creq.URL)
			return nil, fmt.Errorf("invalid redirect from %s: %w", creq.URL, err)
		}
		hop := creq
		if !sameSite(creq.URL, next) {
			hop.Authorization = ""
		}
		resp, err = f.doConditional(ctx, next, hop)
		if err != nil {
			return nil, err
		}
		finalURL = next
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		notModifiedCount.With(prometheus.Labels{"host": host(finalURL)}).Inc()
		return &ConditionalResult{NotModified: true, FinalURL: finalURL}, nil
	case http.StatusOK:
	default:
		countError(finalURL)
		return nil, &models.NetworkError{URL: finalURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		countError(finalURL)
		return nil, fmt.Errorf("failed to read response from %s: %w", finalURL, err)
	}
	downloadCount.With(prometheus.Labels{"host": host(finalURL)}).Inc()

	return &ConditionalResult{
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FinalURL:     finalURL,
	}, nil
}

func (f *Fetcher) doConditional(ctx context.Context, rawURL string, creq ConditionalRequest) (*http.Response, error) {
	req, err := f.newRequest(ctx, rawURL, creq.Authorization)
	if err != nil {
		return nil, err
	}
	if creq.ETag != "" {
		req.Header.Set("If-None-Match", creq.ETag)
	}
	if creq.LastModified != "" {
		req.Header.Set("If-Modified-Since", creq.LastModified)
	}

	resp, err := f.manualClient.Do(req)
	if err != nil {
		countError(rawURL)
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	return resp, nil
}

func (f *Fetcher) newRequest(ctx context.Context, rawURL, authHeader string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	return req, nil
}

// BearerAuth formats a bearer authorization header value; empty tokens yield ""
func BearerAuth(token string) string {
	if token == "" {
		return ""
	}
	return "Bearer " + token
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// sameSite reports whether dest's host equals origin's or is a subdomain of it
func sameSite(origin, dest string) bool {
	o, err := url.Parse(origin)
	if err != nil {
		return false
	}
	d, err := url.Parse(dest)
	if err != nil {
		return false
	}
	oh, dh := strings.ToLower(o.Hostname()), strings.ToLower(d.Hostname())
	return dh == oh || strings.HasSuffix(dh, "."+oh)
}

func resolve(base, location string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	l, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(l).String(), nil
}

func host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid"
	}
	return u.Host
}

func countError(rawURL string) {
	errorCount.With(prometheus.Labels{"host": host(rawURL)}).Inc()
}
