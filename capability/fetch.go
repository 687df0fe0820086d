package capability

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/value"
)

// AbortController cancels the fetches whose init carried it as signal.
type AbortController struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewAbortController returns a controller that has not fired.
func NewAbortController() *AbortController {
	ctx, cancel := context.WithCancel(context.Background())
	return &AbortController{ctx: ctx, cancel: cancel}
}

// Abort fires the controller. Later calls do nothing.
func (a *AbortController) Abort() { a.cancel() }

// Aborted reports whether Abort was called.
func (a *AbortController) Aborted() bool { return a.ctx.Err() != nil }

// Get implements value.Getter.
func (a *AbortController) Get(key string) value.Value {
	if key == "aborted" {
		return a.Aborted()
	}
	return value.Undefined
}

// Request is a fetch request decoded from the module's init object.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	Signal *AbortController
}

// NewRequest reads method, headers, body and signal from init. Headers may
// be an object of strings or a list of [name, value] pairs.
func NewRequest(url string, init value.Value) (*Request, error) {
	req := &Request{Method: http.MethodGet, URL: url, Header: make(http.Header)}
	if value.IsNullish(init) {
		return req, nil
	}
	o, ok := init.(*value.Object)
	if !ok {
		return nil, &value.TypeError{Msg: "fetch init must be an object"}
	}
	if m := o.Get("method"); !value.IsNullish(m) {
		req.Method = strings.ToUpper(value.ToString(m))
	}

	switch h := o.Get("headers").(type) {
	case *value.Object:
		for _, k := range h.Keys() {
			req.Header.Add(k, value.ToString(h.Get(k)))
		}
	case *value.Array:
		for _, e := range h.Elems {
			pair, ok := e.(*value.Array)
			if !ok || pair.Len() != 2 {
				return nil, &value.TypeError{Msg: "header entries must be [name, value] pairs"}
			}
			req.Header.Add(value.ToString(pair.Get(0)), value.ToString(pair.Get(1)))
		}
	}

	switch b := o.Get("body").(type) {
	case nil, value.UndefinedType:
	case string:
		req.Body = []byte(b)
	case *value.ArrayBuffer:
		req.Body = append([]byte(nil), b.Bytes()...)
	case *value.TypedArray:
		req.Body = append([]byte(nil), b.Bytes()...)
	case *value.DataView:
		req.Body = append([]byte(nil), b.Bytes()...)
	default:
		req.Body = []byte(value.ToString(b))
	}
	if req.Body != nil && (req.Method == http.MethodGet || req.Method == http.MethodHead) {
		return nil, &value.TypeError{Msg: "request with " + req.Method + " method cannot have a body"}
	}

	if s := o.Get("signal"); !value.IsNullish(s) {
		ac, ok := s.(*AbortController)
		if !ok {
			return nil, &value.TypeError{Msg: "signal must come from newAbortController"}
		}
		req.Signal = ac
	}
	return req, nil
}

func failure(name string, err error) *value.Object {
	return value.ObjectOf("name", name, "message", err.Error())
}

func response(req *Request, resp *http.Response, body []byte) *value.Object {
	headers := value.NewObject()
	for k := range resp.Header {
		headers.Set(strings.ToLower(k), resp.Header.Get(k))
	}
	return value.ObjectOf(
		"status", float64(resp.StatusCode),
		"statusText", http.StatusText(resp.StatusCode),
		"ok", resp.StatusCode >= 200 && resp.StatusCode < 300,
		"url", req.URL,
		"headers", headers,
		"body", value.WrapBytes(body),
		"text", string(body),
	)
}

func fetch(opts Options) imports.Namespace {
	return imports.Namespace{
		"newAbortController": imports.Returns(imports.Ref, func(context.Context, imports.Env, []value.Value) (value.Value, error) {
			return NewAbortController(), nil
		}),
		"abort": imports.Void(func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			ac, ok := args[0].(*AbortController)
			if !ok {
				return nil, &value.TypeError{Msg: "not an abort controller: " + value.TypeOf(args[0])}
			}
			ac.Abort()
			return nil, nil
		}, imports.Ref),

		// The request runs off the loop. The returned future settles on the
		// loop once the response body has been read.
		"fetch": imports.Returns(imports.Ref, func(ctx context.Context, env imports.Env, args []value.Value) (value.Value, error) {
			loop := env.Loop()
			f := value.NewFuture(loop)

			req, err := NewRequest(value.ToString(args[0]), args[1])
			if err != nil {
				f.Reject(failure("TypeError", err))
				return f, nil
			}
			if opts.Client == nil {
				f.Reject(failure("TypeError", errors.New("fetch is not available")))
				return f, nil
			}
			if req.Signal != nil && req.Signal.Aborted() {
				f.Reject(failure("AbortError", context.Canceled))
				return f, nil
			}

			ctx = context.WithoutCancel(ctx)
			var cancel context.CancelFunc
			if opts.FetchTimeout > 0 {
				ctx, cancel = context.WithTimeout(ctx, opts.FetchTimeout)
			} else {
				ctx, cancel = context.WithCancel(ctx)
			}
			stop := func() bool { return false }
			if req.Signal != nil {
				stop = context.AfterFunc(req.Signal.ctx, cancel)
			}

			release := loop.Hold()
			log := env.Logger().With(zap.String("method", req.Method), zap.String("url", req.URL))
			go func() {
				defer release()
				defer cancel()
				defer stop()
				resp, body, err := opts.Client.Fetch(ctx, req.Method, req.URL, req.Header, req.Body)
				if err != nil {
					log.Debug("fetch failed", zap.Error(err))
				}
				loop.Post(func() {
					switch {
					case err == nil:
						f.Resolve(response(req, resp, body))
					case req.Signal != nil && req.Signal.Aborted():
						f.Reject(failure("AbortError", err))
					default:
						f.Reject(failure("TypeError", err))
					}
				})
			}()
			return f, nil
		}, imports.Ref, imports.Ref),
	}
}
