// Package backend issues authenticated calls to the remote inference
// endpoint. One logical Send is one physical HTTP call; nothing is retried
// here, the caller decides what a failure means.
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/cmdline-assistant/clad/internal/config"
	"github.com/cmdline-assistant/clad/internal/domain"
	"github.com/cmdline-assistant/clad/internal/httputil"
)

// inferPath is the backend's question endpoint, relative to the configured
// base URL.
const inferPath = "/infer"

type Client struct {
	endpoint string
	client   *http.Client
}

// New loads the TLS identity and builds the connection pool. A missing or
// unreadable certificate or key is a fatal configuration error here, not a
// per-request failure later.
func New(cfg config.Backend) (*Client, error) {
	cert, err := tls.LoadX509KeyPair(cfg.Auth.CertFile, cfg.Auth.KeyFile)
	if err != nil {
		return nil, &domain.ConfigError{Field: "backend.auth", Err: fmt.Errorf("load client certificate: %w", err)}
	}

	clientCfg := httputil.DefaultConfig()
	clientCfg.Timeout = cfg.Timeout()
	clientCfg.Certificate = &cert
	clientCfg.InsecureSkipVerify = !cfg.Auth.VerifySSL
	clientCfg.Proxies = cfg.Proxies

	httpClient, err := httputil.NewClient(clientCfg)
	if err != nil {
		return nil, &domain.ConfigError{Field: "backend.proxies", Err: err}
	}

	return &Client{
		endpoint: cfg.Endpoint + inferPath,
		client:   httpClient,
	}, nil
}

// NewWithHTTPClient wires a prebuilt HTTP client; used by tests.
func NewWithHTTPClient(endpoint string, httpClient *http.Client) *Client {
	return &Client{endpoint: endpoint + inferPath, client: httpClient}
}

type inferResponse struct {
	Data struct {
		Text string `json:"text"`
	} `json:"data"`
}

type inferError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// Send posts the query and returns the backend answer. Empty answer text
// is valid. Failures are always a *domain.BackendError.
func (c *Client) Send(ctx context.Context, query domain.BackendQuery) (*domain.BackendAnswer, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, &domain.BackendError{Kind: domain.BackendUnreachable, Err: fmt.Errorf("marshal query: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.BackendError{Kind: domain.BackendUnreachable, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.BackendError{Kind: classifyTransportErr(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.BackendError{
			Kind:   domain.BackendRejected,
			Status: resp.StatusCode,
			Detail: rejectionDetail(resp.Body),
		}
	}

	var parsed inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &domain.BackendError{
			Kind:   domain.BackendRejected,
			Status: resp.StatusCode,
			Detail: "unparseable response body",
			Err:    err,
		}
	}

	return &domain.BackendAnswer{Text: parsed.Data.Text}, nil
}

// classifyTransportErr sorts a transport error: deadline exhaustion is a
// timeout, everything else (refused connection, DNS failure) is
// unreachable.
func classifyTransportErr(err error) domain.BackendErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return domain.BackendTimeout
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.BackendTimeout
	}
	return domain.BackendUnreachable
}

// rejectionDetail pulls a human-readable message out of an error body when
// one is parseable, capped so a misbehaving backend cannot flood logs.
func rejectionDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var parsed inferError
	if err := json.Unmarshal(raw, &parsed); err == nil {
		switch {
		case parsed.Error.Message != "":
			return parsed.Error.Message
		case parsed.Detail != "":
			return parsed.Detail
		case parsed.Message != "":
			return parsed.Message
		}
	}
	return string(raw)
}
