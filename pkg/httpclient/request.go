package httpclient

import (
	"context"

	"resty.dev/v3"
)

// Request is a single gateway request built fluently.
type Request struct {
	client *Client
	resty  *resty.Request
	ctx    context.Context
	method string
	url    string
	into   interface{}
}

// WithHeader sets a header on the request.
func (r *Request) WithHeader(key, value string) *Request {
	r.resty.SetHeader(key, value)
	return r
}

// WithQuery adds a query parameter.
func (r *Request) WithQuery(key, value string) *Request {
	r.resty.SetQueryParam(key, value)
	return r
}

// WithJSON sets body as the JSON request payload.
func (r *Request) WithJSON(body interface{}) *Request {
	r.resty.SetBody(body)
	r.resty.SetHeader("Content-Type", "application/json")
	return r
}

// IntoJSON decodes a successful response body into dest.
func (r *Request) IntoJSON(dest interface{}) *Request {
	r.into = dest
	return r
}

// Do sends the request after waiting for the rate limiter. Failures are
// reported as vigil error categories: transport errors and 5xx responses as
// errors.UnavailableError, cancellation as errors.CancelledError.
func (r *Request) Do() (*Response, error) {
	if err := r.client.waitRateLimit(r.ctx); err != nil {
		return nil, err
	}

	r.resty.SetContext(r.ctx)
	resp, err := r.resty.Execute(r.method, r.url)
	if err != nil {
		return nil, mapRequestError(r.ctx, r.client.config.BaseURL, err)
	}

	out, err := newResponse(resp, r.client.config.BaseURL)
	if err != nil {
		return out, err
	}
	if r.into != nil {
		if err := out.BodyAsJSON(r.into); err != nil {
			return out, err
		}
	}
	return out, nil
}
