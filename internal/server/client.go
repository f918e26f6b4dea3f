package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lotas/tabecho/internal/protocol"
)

// Client sends protocol requests to a running daemon over /api/message.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a client for the daemon listening on port.
func NewClient(port int) *Client {
	return &Client{
		BaseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		HTTP:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// Send posts req and decodes the answer into out. A failure response is
// returned as an error.
func (c *Client) Send(ctx context.Context, req protocol.Request, out protocol.Response) error {
	body, err := protocol.EncodeRequest(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/message", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", c.BaseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	return protocol.DecodeResponse(data, out)
}
