package selector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type request struct {
	path      string
	form      map[string]string
	userAgent string
}

func newTestServer(t *testing.T) (*httptest.Server, Candidate,
	chan request) {

	t.Helper()

	requests := make(chan request, 1)
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, r.ParseForm())

			form := make(map[string]string)
			for key := range r.PostForm {
				form[key] = r.PostForm.Get(key)
			}

			requests <- request{
				path:      r.URL.Path,
				form:      form,
				userAgent: r.UserAgent(),
			}

			_, _ = w.Write([]byte(`{"type":"SUCCESS"}`))
		},
	))
	t.Cleanup(server.Close)

	candidate, err := ParseCandidate(
		strings.TrimPrefix(server.URL, "http://"),
	)
	require.NoError(t, err)

	return server, candidate, requests
}

// TestHTTPTransport asserts the requests sent to a candidate.
func TestHTTPTransport(t *testing.T) {
	_, candidate, requests := newTestServer(t)

	transport := NewHTTPTransport(HTTPTransportConfig{
		Scheme:    "http",
		UserAgent: "relayd/test",
	})
	ctx := context.Background()

	body, err := transport.CheckNode(ctx, candidate)
	require.NoError(t, err)
	require.Equal(t, `{"type":"SUCCESS"}`, string(body))
	require.Equal(t, request{
		path: checkNodePath,
		form: map[string]string{
			"server_type":   ServerTypeOutgoing,
			"num_addresses": "6",
		},
		userAgent: "relayd/test",
	}, <-requests)

	_, err = transport.GetSubAddresses(ctx, candidate, 3)
	require.NoError(t, err)
	require.Equal(t, request{
		path: getAddressesPath,
		form: map[string]string{
			"type":          "SUBCHAIN",
			"account":       ServerTypeOutgoing,
			"num_addresses": "3",
		},
		userAgent: "relayd/test",
	}, <-requests)
}

// TestHTTPTransportUnreachable asserts that a closed server is reported as
// a transport error.
func TestHTTPTransportUnreachable(t *testing.T) {
	server, candidate, _ := newTestServer(t)
	server.Close()

	transport := NewHTTPTransport(HTTPTransportConfig{Scheme: "http"})

	_, err := transport.CheckNode(context.Background(), candidate)
	require.Error(t, err)
}
