package akapi

import "context"

// Get fetches path with GET; data becomes the query string.
func (c *Client) Get(ctx context.Context, path string, data Payload, opts *RequestOptions) (*Result, error) {
	return c.Fetch(ctx, MethodGet, path, data, opts)
}

// Post sends data with POST.
func (c *Client) Post(ctx context.Context, path string, data Payload, opts *RequestOptions) (*Result, error) {
	return c.Fetch(ctx, MethodPost, path, data, opts)
}

// Put sends data with PUT.
func (c *Client) Put(ctx context.Context, path string, data Payload, opts *RequestOptions) (*Result, error) {
	return c.Fetch(ctx, MethodPut, path, data, opts)
}

// Patch sends data with PATCH.
func (c *Client) Patch(ctx context.Context, path string, data Payload, opts *RequestOptions) (*Result, error) {
	return c.Fetch(ctx, MethodPatch, path, data, opts)
}

// Delete sends DELETE.
func (c *Client) Delete(ctx context.Context, path string, data Payload, opts *RequestOptions) (*Result, error) {
	return c.Fetch(ctx, MethodDelete, path, data, opts)
}

// GetCached fetches path with GET and reuses the result of an earlier
// identical call.
func (c *Client) GetCached(ctx context.Context, path string, data Payload) (*Result, error) {
	return c.Fetch(ctx, MethodGet, path, data, &RequestOptions{Cache: true})
}

// GetHTML fetches path with GET and returns the body as text.
func (c *Client) GetHTML(ctx context.Context, path string, data Payload) (*Result, error) {
	return c.Fetch(ctx, MethodGet, path, data, &RequestOptions{Receive: ReceiveHTML})
}

// PostHTML sends data with POST and returns the body as text.
func (c *Client) PostHTML(ctx context.Context, path string, data Payload) (*Result, error) {
	return c.Fetch(ctx, MethodPost, path, data, &RequestOptions{Receive: ReceiveHTML})
}
