package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Transport delivers a Message to a peer and returns its response.
//
// Implementations must bound each call: a single unreachable peer must
// surface as an error within the call's context deadline, never hang.
// A returned error means the peer could not be reached or did not answer;
// it carries no application semantics beyond that.
type Transport interface {
	Send(ctx context.Context, addr string, msg Message) (Message, error)
}

// messagePath maps each request kind to the peer API path that handles it.
var messagePath = map[MessageKind]string{
	KindHeartbeat:   "/cluster/heartbeat",
	KindVoteRequest: "/cluster/vote",
	KindCacheFetch:  "/cache/peer/fetch",
}

// HTTPTransport sends messages as JSON POST bodies to the peer's API.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport returns a transport whose calls are bounded by timeout.
// A zero timeout defaults to 2 seconds, short enough that a dead peer
// cannot stall a periodic tick.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPTransport{
		client: &http.Client{Timeout: timeout},
	}
}

// Send posts msg to the peer at addr and decodes its response envelope.
func (t *HTTPTransport) Send(ctx context.Context, addr string, msg Message) (Message, error) {
	path, ok := messagePath[msg.Kind]
	if !ok {
		return Message{}, fmt.Errorf("no route for message kind %q", msg.Kind)
	}

	var resp Message
	if err := postJSON(ctx, t.client, BaseURL(addr)+path, msg, &resp); err != nil {
		return Message{}, err
	}
	return resp, nil
}

// BaseURL normalizes a peer address into a URL prefix without a trailing
// slash. Addresses may be bare host:port or full http:// URLs.
func BaseURL(addr string) string {
	url := addr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		url = "http://" + addr
	}
	return strings.TrimRight(url, "/")
}

func postJSON(ctx context.Context, client *http.Client, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// PostJSON posts body to url and decodes the response into out (which may
// be nil). Used by callers outside the message envelope, e.g. the CLI.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	return postJSON(ctx, defaultClient, url, body, out)
}

// GetJSON fetches url and decodes the response into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := defaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var defaultClient = &http.Client{Timeout: 5 * time.Second}
