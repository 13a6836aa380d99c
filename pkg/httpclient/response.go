package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Combine-Capital/vigil/pkg/errors"
	"resty.dev/v3"
)

// Response is a fully read gateway response.
type Response struct {
	statusCode int
	headers    http.Header
	body       []byte
}

func newResponse(resp *resty.Response, backend string) (*Response, error) {
	body := resp.Bytes()
	if len(body) == 0 && resp.Body != nil {
		var err error
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.NewUnavailable(backend, fmt.Errorf("reading response body: %w", err))
		}
	}

	out := &Response{
		statusCode: resp.StatusCode(),
		headers:    resp.Header(),
		body:       body,
	}
	return out, mapStatusCode(backend, out.statusCode, body)
}

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int {
	return r.statusCode
}

// Header returns a response header.
func (r *Response) Header(key string) string {
	return r.headers.Get(key)
}

// Body returns the raw body.
func (r *Response) Body() []byte {
	return r.body
}

// BodyAsJSON decodes the body into dest.
func (r *Response) BodyAsJSON(dest interface{}) error {
	if len(r.body) == 0 {
		return errors.NewInvalidInput("body", "empty response body")
	}
	if err := json.Unmarshal(r.body, dest); err != nil {
		return errors.NewInvalidInputWithCause("body", "malformed JSON", err)
	}
	return nil
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.statusCode >= 200 && r.statusCode < 300
}

func mapRequestError(ctx context.Context, backend string, err error) error {
	if ctx.Err() != nil {
		return errors.NewCancelled("gateway request", ctx.Err())
	}
	return errors.NewUnavailable(backend, err)
}

func mapStatusCode(backend string, code int, body []byte) error {
	if code < 400 {
		return nil
	}

	msg := fmt.Sprintf("HTTP %d: %s", code, http.StatusText(code))
	if len(body) > 0 && len(body) < 200 {
		msg = fmt.Sprintf("%s - %s", msg, body)
	}

	switch {
	case code == http.StatusNotFound:
		return errors.NewNotFound("resource", msg)
	case code == http.StatusConflict:
		return errors.NewConflict("resource", msg, nil)
	case code == http.StatusTooManyRequests, code >= 500:
		return errors.NewUnavailable(backend, errors.New(msg))
	default:
		return errors.NewInvalidInput("request", msg)
	}
}
