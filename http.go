package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"github.com/rs/dnscache"
)

type ResponseWrapper struct {
	*http.Response
	Text string
}

// a non-2xx response.
type HTTPError struct {
	StatusCode int
	URL        string
	Message    string // upstream's explanation, if it gave one
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.URL, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// logs the outcome of every request that passes through it.
type LoggingTransport struct {
	Transport http.RoundTripper
	Logger    *slog.Logger
}

func (x LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := x.Transport.RoundTrip(req)
	if err != nil {
		x.Logger.Debug("HTTP transport error", "url", req.URL, "error", err)
		return resp, err
	}
	x.Logger.Debug("HTTP response", "url", req.URL, "status", resp.StatusCode, "elapsed", time.Since(start))
	return resp, nil
}

// a client whose dialer resolves hosts through a DNS cache.
// no timeouts are set, a hung upstream hangs the run.
func new_http_client(logger *slog.Logger) *http.Client {
	resolver := &dnscache.Resolver{}
	dialer := &net.Dialer{
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var last_err error
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
				last_err = err
			}
			if last_err == nil {
				last_err = errors.New("no addresses")
			}
			return nil, fmt.Errorf("failed to dial any resolved IP for '%s': %w", host, last_err)
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &http.Client{
		Transport: LoggingTransport{Transport: transport, Logger: logger},
	}
}

type Downloader struct {
	client *http.Client
	logger *slog.Logger
}

func NewDownloader(client *http.Client, logger *slog.Logger) *Downloader {
	return &Downloader{client: client, logger: logger}
}

// client trace to log whether the request's underlying tcp connection was re-used
func (d *Downloader) trace_context(ctx context.Context) context.Context {
	client_tracer := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			d.logger.Debug("HTTP connection reuse", "reused", info.Reused, "remote", info.Conn.RemoteAddr())
		},
	}
	return httptrace.WithClientTrace(ctx, client_tracer)
}

// fetches `url` and reads the whole body.
// any status code is a successful download, callers decide what a bad status means.
func (d *Downloader) Download(ctx context.Context, url string, headers map[string]string) (ResponseWrapper, error) {
	d.logger.Debug("HTTP GET", "url", url)
	empty_response := ResponseWrapper{}

	// ---

	req, err := http.NewRequestWithContext(d.trace_context(ctx), http.MethodGet, url, nil)
	if err != nil {
		return empty_response, fmt.Errorf("failed to create request: %w", err)
	}
	for header, header_val := range headers {
		req.Header.Set(header, header_val)
	}

	// ---

	resp, err := d.client.Do(req)
	if err != nil {
		return empty_response, fmt.Errorf("failed to fetch '%s': %w", url, err)
	}
	defer resp.Body.Close()

	// ---

	content_bytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty_response, fmt.Errorf("failed to read response body: %w", err)
	}

	return ResponseWrapper{
		Response: resp,
		Text:     string(content_bytes),
	}, nil
}
