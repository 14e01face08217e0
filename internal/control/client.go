package control

import (
	"context"
	"fmt"
	"net"
	"time"
)

type Client struct {
	path    string
	timeout time.Duration
}

func NewClient(path string) *Client {
	return &Client{path: path, timeout: 30 * time.Second}
}

func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

// Send performs one request/response exchange.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "unix", c.path)
	if err != nil {
		return nil, fmt.Errorf("connect to consumer at %s (is `sstbridge consumer` running?): %w", c.path, err)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	if err := WriteFrame(conn, req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &resp, nil
}

// Call sends command with params and decodes the payload into out (which may be nil).
func (c *Client) Call(ctx context.Context, command string, params, out any) error {
	req, err := NewRequest(command, params)
	if err != nil {
		return err
	}
	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}
