package nsi

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/anaeng/aura/internal/logger"
)

const (
	requestTimeout  = 30 * time.Second
	connectRetries  = 3
	contentTypeSOAP = "text/xml; charset=utf-8"

	// maxReplySize bounds how much of a peer's reply we are willing to read.
	maxReplySize = 8 << 20
)

// ClientConfig holds the TLS material and verification policy for outbound
// control plane requests.
type ClientConfig struct {
	// Certificate and PrivateKey are the PEM files presented as the client
	// identity. Providers authenticate requesters by certificate.
	Certificate string
	PrivateKey  string

	// CACertificates optionally overrides the system trust store with a PEM
	// bundle file or a directory of PEM files.
	CACertificates string

	// Verify disables server certificate verification when false.
	Verify bool
}

// Client posts SOAP messages to NSI providers and fetches DDS documents. It
// retries connection-level failures with exponential backoff; HTTP-level
// errors (including SOAP faults carried on a 500) are returned to the caller.
type Client struct {
	http *http.Client
}

// NewClient builds the shared HTTP client. The TLS handshake material is
// loaded once; certificate rotation requires a restart.
func NewClient(cfg ClientConfig) (*Client, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if cfg.Certificate != "" && cfg.PrivateKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.Certificate, cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.CACertificates != "" {
		pool, err := loadCertPool(cfg.CACertificates)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}

	if !cfg.Verify {
		logger.Warn("server certificate verification is disabled")
		tlsConfig.InsecureSkipVerify = true
	}

	return &Client{
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		},
	}, nil
}

// loadCertPool reads a PEM bundle file or every file in a directory into a
// certificate pool.
func loadCertPool(path string) (*x509.CertPool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificates: %w", err)
	}

	pool := x509.NewCertPool()
	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate directory: %w", err)
		}
		files = files[:0]
		for _, entry := range entries {
			if !entry.IsDir() {
				files = append(files, filepath.Join(path, entry.Name()))
			}
		}
	}

	loaded := false
	for _, file := range files {
		pem, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate %s: %w", file, err)
		}
		if pool.AppendCertsFromPEM(pem) {
			loaded = true
		} else {
			logger.Warn("no certificates found in CA file", "file", file)
		}
	}
	if !loaded {
		return nil, fmt.Errorf("no usable CA certificates under %s", path)
	}
	return pool, nil
}

// validSOAPContentType accepts the content types providers are known to send
// on SOAP replies.
func validSOAPContentType(contentType string) bool {
	return contentType == "application/xml" || strings.HasPrefix(contentType, "text/xml")
}

// PostSOAP sends a SOAP 1.1 message and returns the reply body. Connection
// failures are retried up to connectRetries times with exponential backoff;
// a reply with an unexpected content type is an error. SOAP faults are NOT
// detected here: callers parse the reply and check Document.Fault.
func (c *Client) PostSOAP(ctx context.Context, url string, message []byte) ([]byte, error) {
	var reply []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(message))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		req.Header.Set("Content-Type", contentTypeSOAP)

		resp, err := c.http.Do(req)
		if err != nil {
			logger.Warn("SOAP request failed, retrying", "url", url, "error", err)
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
		if err != nil {
			return fmt.Errorf("failed to read reply: %w", err)
		}

		contentType := resp.Header.Get("Content-Type")
		if !validSOAPContentType(contentType) {
			return backoff.Permanent(fmt.Errorf("unexpected reply content type %q from %s", contentType, url))
		}

		reply = body
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(500*time.Millisecond),
		), connectRetries),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return reply, nil
}

// Get fetches a plain document, such as a DDS index or topology page.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s returned status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
}
