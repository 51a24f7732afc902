package selector

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultHandshakeTimeout bounds a single request to a candidate.
	DefaultHandshakeTimeout = 60 * time.Second

	// DefaultNumAddresses is the number of addresses requested from a
	// candidate during the handshake.
	DefaultNumAddresses = 6

	checkNodePath    = "/api/check-node"
	getAddressesPath = "/api/get-addresses"

	// maxResponseSize caps the body read from a candidate.
	maxResponseSize = 1 << 20
)

// Transport performs the raw requests to a candidate. Responses are returned
// undecoded so that malformed bodies can be told apart from transport
// failures.
type Transport interface {
	// CheckNode asks the candidate to self-report as an outgoing node.
	CheckNode(ctx context.Context, candidate Candidate) ([]byte, error)

	// GetSubAddresses asks the partner for n subchain addresses.
	GetSubAddresses(ctx context.Context, candidate Candidate,
		n int) ([]byte, error)
}

// HTTPTransportConfig configures the HTTPS transport.
type HTTPTransportConfig struct {
	// Timeout is the per request timeout.
	Timeout time.Duration

	// NumAddresses is the number of addresses asked for in the
	// handshake.
	NumAddresses int

	// ClientCert is an optional certificate presented to candidates.
	ClientCert *tls.Certificate

	// Scheme overrides the URL scheme, "https" if empty.
	Scheme string

	// UserAgent is sent with every request if set.
	UserAgent string
}

// HTTPTransport talks to candidates over HTTPS. Candidate certificates are
// not verified; trust is established by the handshake checks instead.
type HTTPTransport struct {
	cfg    HTTPTransportConfig
	client *http.Client
}

// A compile time check to ensure HTTPTransport implements Transport.
var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a new transport.
func NewHTTPTransport(cfg HTTPTransportConfig) *HTTPTransport {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultHandshakeTimeout
	}
	if cfg.NumAddresses == 0 {
		cfg.NumAddresses = DefaultNumAddresses
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: true, // nolint:gosec
	}
	if cfg.ClientCert != nil {
		tlsConfig.Certificates = []tls.Certificate{*cfg.ClientCert}
	}

	base := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		TLSClientConfig:   tlsConfig,
		DisableKeepAlives: true,
	}

	return &HTTPTransport{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(base),
		},
	}
}

// CheckNode posts the handshake form to /api/check-node.
func (h *HTTPTransport) CheckNode(ctx context.Context,
	candidate Candidate) ([]byte, error) {

	form := url.Values{}
	form.Set("server_type", ServerTypeOutgoing)
	form.Set("num_addresses", strconv.Itoa(h.cfg.NumAddresses))

	return h.post(ctx, candidate, checkNodePath, form)
}

// GetSubAddresses posts an address request to /api/get-addresses.
func (h *HTTPTransport) GetSubAddresses(ctx context.Context,
	candidate Candidate, n int) ([]byte, error) {

	form := url.Values{}
	form.Set("type", "SUBCHAIN")
	form.Set("account", ServerTypeOutgoing)
	form.Set("num_addresses", strconv.Itoa(n))

	return h.post(ctx, candidate, getAddressesPath, form)
}

func (h *HTTPTransport) post(ctx context.Context, candidate Candidate,
	path string, form url.Values) ([]byte, error) {

	uri := fmt.Sprintf("%s://%s%s", h.cfg.Scheme, candidate, path)

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, uri, strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if h.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", h.cfg.UserAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response from %v: %w", candidate,
			err)
	}

	log.Tracef("Response from %v%v: status=%v, %d bytes", candidate,
		path, resp.StatusCode, len(body))

	return body, nil
}
