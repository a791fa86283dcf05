// Package backend is the HTTP client for the iris prediction service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"iris-predict/internal/iris"
	"iris-predict/internal/util"
)

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes = 1024 * 1024

// Client talks to /predict, /api/healthz and /api/version under BaseURL.
//
// Deadlines come from the caller's context; HTTP has no client-level timeout.
type Client struct {
	BaseURL      *url.URL
	HTTP         *http.Client
	MaxBodyBytes int64
}

// NewClient constructs a client for the given API base.
func NewClient(base string) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse api base: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api base %q must be an absolute URL", base)
	}
	return &Client{
		BaseURL:      u,
		HTTP:         &http.Client{Transport: http.DefaultTransport},
		MaxBodyBytes: DefaultMaxBodyBytes,
	}, nil
}

// Base returns the API base as a string.
func (c *Client) Base() string {
	return c.BaseURL.String()
}

func (c *Client) endpoint(elem ...string) string {
	return c.BaseURL.JoinPath(elem...).String()
}

// Predict sends one prediction request.
//
// The body is always parsed before the status is inspected: an unparseable
// body is a malformed response whatever the status, a non-2xx status is a
// server error carrying the body's "error" field or "HTTP <status>".
func (c *Client) Predict(ctx context.Context, req iris.Request) (iris.Result, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return iris.Result{}, fmt.Errorf("encode predict request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("predict"), bytes.NewReader(b))
	if err != nil {
		return iris.Result{}, fmt.Errorf("build predict request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return iris.Result{}, transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := util.ReadAllLimit(resp.Body, c.MaxBodyBytes)
	if err != nil {
		return iris.Result{}, transportError(ctx, err)
	}

	m, err := util.DecodeJSONMap(body)
	if err != nil {
		return iris.Result{}, iris.NewError(iris.KindMalformed, resp.StatusCode, iris.MsgInvalidJSON, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := util.ToString(m["error"])
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return iris.Result{}, iris.NewError(iris.KindServer, resp.StatusCode, msg, nil)
	}

	return decodeResult(m, resp.StatusCode)
}

func decodeResult(m map[string]any, status int) (iris.Result, error) {
	pred, err := iris.PredictionFrom(m["prediction"])
	if err != nil || pred.IsZero() {
		if err == nil {
			err = errors.New("missing prediction")
		}
		return iris.Result{}, iris.NewError(iris.KindMalformed, status, iris.MsgInvalidJSON, err)
	}

	res := iris.Result{Prediction: pred}
	res.ModelType, _ = util.ToString(m["model_type"])
	res.Features, _ = util.ToFloat64Slice(m["features"])
	res.ServerLabel, _ = util.ToString(m["label"])
	return res, nil
}

// Healthz pings /api/healthz. 2xx and 3xx count as healthy.
func (c *Client) Healthz(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("api", "healthz"), nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()
	_, _ = util.ReadAllLimit(resp.Body, c.MaxBodyBytes)

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return iris.NewError(iris.KindServer, resp.StatusCode, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}
	return nil
}

// VersionResponse is the body of GET /api/version.
type VersionResponse struct {
	Version string `json:"version"`
}

// Version fetches the service version.
func (c *Client) Version(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("api", "version"), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := util.ReadAllLimit(resp.Body, c.MaxBodyBytes)
	if err != nil {
		return "", transportError(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", iris.NewError(iris.KindServer, resp.StatusCode, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}

	var out VersionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", iris.NewError(iris.KindMalformed, resp.StatusCode, iris.MsgInvalidJSON, err)
	}
	return out.Version, nil
}

// transportError classifies a failure with no usable response. The
// context decides between our own deadline, a cancellation and a plain
// network failure.
func transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return iris.NewError(iris.KindTimeout, 0, iris.MsgTimeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return iris.NewError(iris.KindCancelled, 0, iris.MsgCancelled, err)
	default:
		return iris.NewError(iris.KindNetwork, 0, "network error: "+err.Error(), err)
	}
}
