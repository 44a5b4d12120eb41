// Package httputil builds the outbound HTTP client used for backend calls.
package httputil

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

type ClientConfig struct {
	Timeout               time.Duration
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	IdleConnTimeout       time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int

	// Certificate is the client identity presented during the TLS
	// handshake.
	Certificate *tls.Certificate
	// InsecureSkipVerify disables server certificate verification.
	InsecureSkipVerify bool
	// Proxies maps scheme ("http", "https") to proxy URL. Empty means a
	// direct connection.
	Proxies map[string]string
}

func DefaultConfig() ClientConfig {
	return ClientConfig{
		Timeout:               30 * time.Second,
		DialTimeout:           10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
	}
}

func NewClient(cfg ClientConfig) (*http.Client, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.Certificate != nil {
		tlsConfig.Certificates = []tls.Certificate{*cfg.Certificate}
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       tlsConfig,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		ForceAttemptHTTP2:     true,
	}

	if len(cfg.Proxies) > 0 {
		proxyFunc, err := proxySelector(cfg.Proxies)
		if err != nil {
			return nil, err
		}
		transport.Proxy = proxyFunc
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}, nil
}

// proxySelector picks the configured proxy by request scheme.
func proxySelector(proxies map[string]string) (func(*http.Request) (*url.URL, error), error) {
	parsed := make(map[string]*url.URL, len(proxies))
	for scheme, raw := range proxies {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s proxy %q: %w", scheme, raw, err)
		}
		parsed[scheme] = u
	}

	return func(req *http.Request) (*url.URL, error) {
		if u, ok := parsed[req.URL.Scheme]; ok {
			return u, nil
		}
		return nil, nil
	}, nil
}
