// Package http provides the "http" extension: an HTTP(S) client.
//
//	http_modes_()
//	http_get_(url, headers=None, simple=False, timeout=4.0, client=1)
//	http_put_(url, data=None, headers=None, timeout=4.0, client=1)
//	http_request_(method, url, data=None, headers=None, timeout=4.0)
//
// Requests return (status, body, info) where info is a dict holding the
// response status line, final URL, protocol and headers. Failures never
// raise: they return (code, message, None) with one of the Err* codes.
// http_get_ with simple=True returns only the body, or "" on failure.
//
// Only the http and https schemes are accepted. Option http_insecure skips
// TLS certificate verification.
package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ardnew/cask/engine"
	"github.com/ardnew/cask/ext/internal/opt"
)

// Name is the extension's catalog name.
const Name = "http"

// Insecure is the option key that disables certificate verification.
const Insecure = "http_insecure"

// ClientMode is the only client mode. Scripts may still pass client= for
// compatibility; any other value fails with [ErrMode].
const ClientMode = 1

// Status codes returned in place of an HTTP status on failure.
const (
	ErrMode       = 999
	ErrGetScheme  = 998
	ErrGet        = 996
	ErrPutScheme  = 995
	ErrPut        = 994
	ErrRequest    = 993
	ErrConnection = 992
)

const (
	defaultTimeout = 4 * time.Second
	maxBody        = 16 << 20
)

// defaultHeader is sent when a request names no headers.
var defaultHeader = map[string]string{
	"Content-Type": "text/plain; charset=UTF-8",
	"Accept":       "text/plain",
	"Connection":   "close",
}

var methods = []string{
	nethttp.MethodGet, nethttp.MethodOptions, nethttp.MethodHead, nethttp.MethodPost,
	nethttp.MethodPut, nethttp.MethodPatch, nethttp.MethodDelete,
}

// Provider implements the http extension.
type Provider struct {
	api    *engine.API
	client *nethttp.Client
}

// New is the extension's [engine.Factory].
func New(opts map[string]any) engine.Provider {
	transport := nethttp.DefaultTransport.(*nethttp.Transport).Clone()
	if opt.Bool(opts, Insecure) {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &Provider{client: &nethttp.Client{Transport: transport}}
}

// Register implements [engine.Provider].
func (p *Provider) Register(api *engine.API) (engine.Exports, error) {
	p.api = api

	return engine.Exports{
		"http_modes_":   modes,
		"http_get_":     p.get,
		"http_put_":     p.put,
		"http_request_": p.request,
	}, nil
}

// Shutdown closes idle connections.
func (p *Provider) Shutdown(context.Context) error {
	p.client.CloseIdleConnections()

	return nil
}

// modes returns the available client modes and the default.
func modes(_ context.Context, a engine.Args) (any, error) {
	if err := a.Unpack("http_modes_"); err != nil {
		return nil, err
	}

	return engine.NewTuple(engine.NewList(int64(ClientMode)), int64(ClientMode)), nil
}

// call describes one request.
type call struct {
	method  string
	url     string
	data    any
	headers any
	timeout time.Duration
}

// checkHeaders rejects a headers argument that is neither None nor a dict.
func (c call) checkHeaders(fname string) error {
	switch c.headers.(type) {
	case nil, *engine.Dict:
		return nil
	}

	return engine.Errorf(engine.CategoryType, "%s() argument 'headers' must be dict, not %s",
		fname, engine.TypeName(c.headers))
}

func (p *Provider) get(ctx context.Context, a engine.Args) (any, error) {
	c := call{method: nethttp.MethodGet, timeout: defaultTimeout}

	var (
		simple bool
		client = int64(ClientMode)
	)

	if err := a.Unpack("http_get_", "url", &c.url, "headers?", &c.headers,
		"simple?", &simple, "timeout?", &c.timeout, "client?", &client); err != nil {
		return nil, err
	}

	if err := c.checkHeaders("http_get_"); err != nil {
		return nil, err
	}

	res := p.checked(ctx, c, client, ErrGetScheme, ErrGet)
	if !simple {
		return res, nil
	}

	if res.Items[2] == nil {
		return "", nil
	}

	return res.Items[1], nil
}

func (p *Provider) put(ctx context.Context, a engine.Args) (any, error) {
	c := call{method: nethttp.MethodPut, timeout: defaultTimeout}
	client := int64(ClientMode)

	if err := a.Unpack("http_put_", "url", &c.url, "data?", &c.data, "headers?", &c.headers,
		"timeout?", &c.timeout, "client?", &client); err != nil {
		return nil, err
	}

	if err := c.checkHeaders("http_put_"); err != nil {
		return nil, err
	}

	return p.checked(ctx, c, client, ErrPutScheme, ErrPut), nil
}

func (p *Provider) request(ctx context.Context, a engine.Args) (any, error) {
	c := call{timeout: defaultTimeout}

	if err := a.Unpack("http_request_", "method", &c.method, "url", &c.url, "data?", &c.data,
		"headers?", &c.headers, "timeout?", &c.timeout); err != nil {
		return nil, err
	}

	if err := c.checkHeaders("http_request_"); err != nil {
		return nil, err
	}

	c.method = strings.ToUpper(strings.TrimSpace(c.method))

	for _, m := range methods {
		if m == c.method {
			return p.do(ctx, c, ErrRequest), nil
		}
	}

	return failure(ErrRequest, "unsupported method "+c.method), nil
}

// checked validates the client mode and scheme before sending c.
func (p *Provider) checked(ctx context.Context, c call, client int64, schemeCode, failCode int) *engine.Tuple {
	if client != ClientMode {
		return failure(ErrMode, fmt.Sprintf("client mode unavailable: %d", client))
	}

	u, err := url.Parse(c.url)
	if err != nil {
		return failure(failCode, err.Error())
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return failure(schemeCode, "invalid scheme: "+u.Scheme)
	}

	return p.do(ctx, c, failCode)
}

// do sends c and converts the response. Transport errors are reported with
// failCode; bodies are read up to maxBody bytes.
func (p *Provider) do(ctx context.Context, c call, failCode int) *engine.Tuple {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if c.data != nil {
		body = strings.NewReader(engine.Str(c.data))
	}

	req, err := nethttp.NewRequestWithContext(ctx, c.method, c.url, body)
	if err != nil {
		return failure(failCode, err.Error())
	}

	if h, ok := c.headers.(*engine.Dict); ok {
		for _, kv := range h.Items() {
			pair := kv.(*engine.Tuple).Items
			req.Header.Set(engine.Str(pair[0]), engine.Str(pair[1]))
		}
	} else {
		for k, v := range defaultHeader {
			req.Header.Set(k, v)
		}
	}

	p.api.Logger().DebugContext(ctx, "http request",
		slog.String("method", c.method), slog.String("url", c.url))

	resp, err := p.client.Do(req)
	if err != nil {
		p.api.Logger().WarnContext(ctx, "http request failed",
			slog.String("url", c.url), slog.Any("error", err))

		return failure(ErrConnection, err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return failure(ErrConnection, err.Error())
	}

	headers := engine.NewDict()
	for k, vs := range resp.Header {
		_ = headers.Set(k, strings.Join(vs, ", "))
	}

	info := engine.NewDict()
	_ = info.Set("status", resp.Status)
	_ = info.Set("url", resp.Request.URL.String())
	_ = info.Set("proto", resp.Proto)
	_ = info.Set("headers", headers)

	return engine.NewTuple(int64(resp.StatusCode), string(data), info)
}

func failure(code int, msg string) *engine.Tuple {
	return engine.NewTuple(int64(code), msg, nil)
}
