package lightweight

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/fetchkit/browsecore/models"
)

// webStorage is the Go backing store for localStorage/sessionStorage, both
// of which are plain string-keyed maps per this system — no quota simulation.
type webStorage struct {
	mu   sync.Mutex
	data map[string]string
}

func newWebStorage() *webStorage {
	return &webStorage{data: make(map[string]string)}
}

func (s *webStorage) bind(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	obj.Set("getItem", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		s.mu.Lock()
		v, ok := s.data[key]
		s.mu.Unlock()
		if !ok {
			return goja.Null()
		}
		return vm.ToValue(v)
	})
	obj.Set("setItem", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		val := call.Argument(1).String()
		s.mu.Lock()
		s.data[key] = val
		s.mu.Unlock()
		return goja.Undefined()
	})
	obj.Set("removeItem", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()
		return goja.Undefined()
	})
	obj.Set("clear", func(call goja.FunctionCall) goja.Value {
		s.mu.Lock()
		s.data = make(map[string]string)
		s.mu.Unlock()
		return goja.Undefined()
	})
	return obj
}

// pageRuntime wires one goja.Runtime with the simulated DOM surface the
// spec requires: localStorage/sessionStorage, document.cookie, location,
// navigator, setTimeout/setInterval (run synchronously), btoa/atob, a
// fetch bound to a real HTTP client sharing the static tier's cookie jar,
// and Worker/WebSocket globals that throw.
type pageRuntime struct {
	vm       *goja.Runtime
	client   *http.Client
	jar      http.CookieJar
	pageURL  *url.URL
	ctx      context.Context
	userAgent string

	netMu   sync.Mutex
	network []models.NetworkRequest
}

func newPageRuntime(ctx context.Context, client *http.Client, jar http.CookieJar, pageURL *url.URL, userAgent string) *pageRuntime {
	pr := &pageRuntime{
		vm:        goja.New(),
		client:    client,
		jar:       jar,
		pageURL:   pageURL,
		ctx:       ctx,
		userAgent: userAgent,
	}
	pr.install()
	return pr
}

func (pr *pageRuntime) install() {
	vm := pr.vm

	vm.Set("localStorage", newWebStorage().bind(vm))
	vm.Set("sessionStorage", newWebStorage().bind(vm))

	doc := vm.NewObject()
	doc.DefineAccessorProperty("cookie",
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if pr.jar == nil {
				return vm.ToValue("")
			}
			var pairs []string
			for _, c := range pr.jar.Cookies(pr.pageURL) {
				pairs = append(pairs, c.Name+"="+c.Value)
			}
			return vm.ToValue(strings.Join(pairs, "; "))
		}),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if pr.jar == nil {
				return goja.Undefined()
			}
			raw := call.Argument(0).String()
			parts := strings.SplitN(strings.TrimSpace(strings.Split(raw, ";")[0]), "=", 2)
			if len(parts) == 2 {
				pr.jar.SetCookies(pr.pageURL, []*http.Cookie{{Name: parts[0], Value: parts[1]}})
			}
			return goja.Undefined()
		}),
		goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_TRUE)
	vm.Set("document", doc)

	location := vm.NewObject()
	location.Set("href", pr.pageURL.String())
	location.Set("hostname", pr.pageURL.Hostname())
	location.Set("pathname", pr.pageURL.Path)
	location.Set("search", pr.pageURL.RawQuery)
	location.Set("hash", pr.pageURL.Fragment)
	location.Set("protocol", pr.pageURL.Scheme+":")
	vm.Set("location", location)

	navigator := vm.NewObject()
	navigator.Set("userAgent", pr.userAgent)
	vm.Set("navigator", navigator)

	vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		runTimerCallback(vm, call)
		return vm.ToValue(0)
	})
	vm.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		// A single synchronous pass — repeating indefinitely would hang a
		// scripted page whose interval never clears itself.
		runTimerCallback(vm, call)
		return vm.ToValue(0)
	})
	vm.Set("clearTimeout", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	vm.Set("clearInterval", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })

	vm.Set("btoa", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(base64.StdEncoding.EncodeToString([]byte(call.Argument(0).String())))
	})
	vm.Set("atob", func(call goja.FunctionCall) goja.Value {
		decoded, err := base64.StdEncoding.DecodeString(call.Argument(0).String())
		if err != nil {
			panic(vm.NewTypeError("atob: invalid base64 input"))
		}
		return vm.ToValue(string(decoded))
	})

	vm.Set("Worker", func(call goja.ConstructorCall) *goja.Object {
		panic(vm.NewTypeError("Worker is not supported by the lightweight renderer"))
	})
	vm.Set("WebSocket", func(call goja.ConstructorCall) *goja.Object {
		panic(vm.NewTypeError("WebSocket is not supported by the lightweight renderer"))
	})

	vm.Set("fetch", pr.fetch)
}

func runTimerCallback(vm *goja.Runtime, call goja.FunctionCall) {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		return
	}
	// Timers run synchronously and immediately: there is no event loop in
	// the simulated DOM, so any delay argument is ignored.
	_, _ = fn(goja.Undefined())
}

// fetch performs a real HTTP request, shares the static tier's cookie jar,
// and records a NetworkRequest. Responses are exposed as a minimal
// thenable rather than a true Promise, since scripts execute with no
// microtask loop — this still satisfies the common `fetch(url).then(...)`
// shape used by inline bootstrap scripts.
func (pr *pageRuntime) fetch(call goja.FunctionCall) goja.Value {
	vm := pr.vm
	if len(call.Arguments) == 0 {
		panic(vm.NewTypeError("fetch requires a URL argument"))
	}
	rawURL := call.Argument(0).String()
	reqURL, err := pr.pageURL.Parse(rawURL)
	if err != nil {
		return pr.rejectedThenable(err)
	}

	method := http.MethodGet
	var body io.Reader
	var reqBody string
	headers := map[string]string{}
	if len(call.Arguments) > 1 {
		if opts := call.Argument(1).ToObject(vm); opts != nil {
			if m := opts.Get("method"); m != nil && !goja.IsUndefined(m) {
				method = strings.ToUpper(m.String())
			}
			if b := opts.Get("body"); b != nil && !goja.IsUndefined(b) {
				reqBody = b.String()
				body = strings.NewReader(reqBody)
			}
			if h := opts.Get("headers"); h != nil && !goja.IsUndefined(h) {
				if hObj := h.ToObject(vm); hObj != nil {
					for _, k := range hObj.Keys() {
						headers[k] = hObj.Get(k).String()
					}
				}
			}
		}
	}

	httpReq, err := http.NewRequestWithContext(pr.ctx, method, reqURL.String(), body)
	if err != nil {
		return pr.rejectedThenable(err)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	if pr.userAgent != "" {
		httpReq.Header.Set("User-Agent", pr.userAgent)
	}

	resp, err := pr.client.Do(httpReq)
	if err != nil {
		return pr.rejectedThenable(err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 10<<20))

	pr.netMu.Lock()
	pr.network = append(pr.network, models.NetworkRequest{
		URL:            reqURL.String(),
		Method:         method,
		Status:         resp.StatusCode,
		Headers:        flattenHeader(resp.Header),
		RequestHeaders: headers,
		RequestBody:    reqBody,
		ResponseBody:   string(respBody),
		ContentType:    resp.Header.Get("Content-Type"),
	})
	pr.netMu.Unlock()

	respObj := vm.NewObject()
	respObj.Set("ok", resp.StatusCode >= 200 && resp.StatusCode < 300)
	respObj.Set("status", resp.StatusCode)
	respObj.Set("statusText", http.StatusText(resp.StatusCode))
	bodyText := string(respBody)
	respObj.Set("text", func(goja.FunctionCall) goja.Value { return pr.resolvedThenable(vm.ToValue(bodyText)) })
	respObj.Set("json", func(goja.FunctionCall) goja.Value {
		parsed, perr := vm.RunString("(" + bodyText + ")")
		if perr != nil {
			return pr.rejectedThenable(perr)
		}
		return pr.resolvedThenable(parsed)
	})

	return pr.resolvedThenable(respObj)
}

func (pr *pageRuntime) resolvedThenable(value goja.Value) *goja.Object {
	return pr.thenable(value, nil)
}

func (pr *pageRuntime) rejectedThenable(err error) *goja.Object {
	return pr.thenable(goja.Undefined(), err)
}

// thenable builds a minimal {then, catch} object: calling .then invokes the
// resolve (or reject) callback synchronously and wraps whatever it returns
// in another thenable, so chained `.then().then()` calls keep working.
func (pr *pageRuntime) thenable(value goja.Value, err error) *goja.Object {
	vm := pr.vm
	obj := vm.NewObject()
	obj.Set("then", func(call goja.FunctionCall) goja.Value {
		if err != nil {
			if rejectFn, ok := goja.AssertFunction(call.Argument(1)); ok {
				result, _ := rejectFn(goja.Undefined(), vm.ToValue(err.Error()))
				return pr.resolvedThenable(result)
			}
			return pr.rejectedThenable(err)
		}
		if resolveFn, ok := goja.AssertFunction(call.Argument(0)); ok {
			result, callErr := resolveFn(goja.Undefined(), value)
			if callErr != nil {
				return pr.rejectedThenable(callErr)
			}
			return pr.resolvedThenable(result)
		}
		return pr.resolvedThenable(value)
	})
	obj.Set("catch", func(call goja.FunctionCall) goja.Value {
		if err != nil {
			if rejectFn, ok := goja.AssertFunction(call.Argument(0)); ok {
				result, _ := rejectFn(goja.Undefined(), vm.ToValue(err.Error()))
				return pr.resolvedThenable(result)
			}
		}
		return obj
	})
	return obj
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
