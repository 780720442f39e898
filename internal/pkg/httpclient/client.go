package httpclient

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client wraps resty for HTTP requests to payment providers.
// Requests are never retried here: a provider call that timed out may still
// have created the order, so retry policy belongs to the caller.
type Client struct {
	r *resty.Client
}

// Response is the raw outcome of a request that reached the server.
type Response struct {
	StatusCode int
	Body       []byte
}

// New creates a new HTTP client with a bounded timeout and retries disabled.
func New() *Client {
	r := resty.New().
		SetTimeout(15 * time.Second).
		SetRetryCount(0)

	return &Client{r: r}
}

// WithTimeout sets a custom timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.r.SetTimeout(d)
	return c
}

// WithBaseURL sets the base URL that relative request paths resolve against.
func (c *Client) WithBaseURL(url string) *Client {
	c.r.SetBaseURL(url)
	return c
}

// WithHeader sets a custom header sent with every request.
func (c *Client) WithHeader(key, value string) *Client {
	c.r.SetHeader(key, value)
	return c
}

// PostForm sends a form-encoded POST request.
func (c *Client) PostForm(ctx context.Context, url string, data map[string]string) (*Response, error) {
	resp, err := c.r.R().
		SetContext(ctx).
		SetFormData(data).
		Post(url)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode(), Body: resp.Body()}, nil
}

// PostJSON sends a JSON POST request. body may be pre-encoded bytes so the
// caller can sign exactly what goes on the wire.
func (c *Client) PostJSON(ctx context.Context, url string, body interface{}, headers map[string]string) (*Response, error) {
	req := c.r.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(headers)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Post(url)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode(), Body: resp.Body()}, nil
}
