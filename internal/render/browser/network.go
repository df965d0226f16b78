package browser

import (
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/fetchkit/browsecore/models"
)

// networkCapture accumulates request/response pairs observed on one page
// visit, correlated by CDP RequestID. Grounded on
// theRebelliousNerd-codenerd's internal/browser/session_manager.go, which
// drives page.Context(ctx).EachEvent with a NetworkRequestWillBeSent and a
// NetworkResponseReceived callback run together in a goroutine scoped to the
// page's context — purify's own scraper/page.go explicitly avoids
// EachEvent(NetworkResponseReceived) because of an ERR_BLOCKED_BY_CLIENT
// regression, so this package borrows the pattern from codenerd instead.
type networkCapture struct {
	mu        sync.Mutex
	pending   map[proto.NetworkRequestID]*models.NetworkRequest
	sent      map[proto.NetworkRequestID]time.Time
	completed []models.NetworkRequest
	fetchBody bool
}

// captureNetwork installs CDP listeners on p and returns the capture handle.
// The listener loop runs until p's context is done (p is expected to already
// be scoped via page.Context(ctx)), matching the codenerd grounding.
func captureNetwork(p *rod.Page, fetchBody bool) *networkCapture {
	nc := &networkCapture{
		pending:   make(map[proto.NetworkRequestID]*models.NetworkRequest),
		sent:      make(map[proto.NetworkRequestID]time.Time),
		fetchBody: fetchBody,
	}

	go p.EachEvent(func(e *proto.NetworkRequestWillBeSent) {
		nc.mu.Lock()
		defer nc.mu.Unlock()
		headers := make(map[string]string, len(e.Request.Headers))
		for k, v := range e.Request.Headers {
			headers[k] = v.String()
		}
		nc.pending[e.RequestID] = &models.NetworkRequest{
			URL:            e.Request.URL,
			Method:         e.Request.Method,
			RequestHeaders: headers,
			RequestBody:    e.Request.PostData,
			Timestamp:      time.Now(),
		}
		nc.sent[e.RequestID] = time.Now()
	}, func(e *proto.NetworkResponseReceived) {
		nc.mu.Lock()
		req, ok := nc.pending[e.RequestID]
		if !ok {
			nc.mu.Unlock()
			return
		}
		delete(nc.pending, e.RequestID)
		sentAt, hadSent := nc.sent[e.RequestID]
		delete(nc.sent, e.RequestID)
		nc.mu.Unlock()

		req.Status = e.Response.Status
		req.ContentType = e.Response.MIMEType
		headers := make(map[string]string, len(e.Response.Headers))
		for k, v := range e.Response.Headers {
			headers[k] = v.String()
		}
		req.Headers = headers
		if hadSent {
			req.DurationMs = time.Since(sentAt).Milliseconds()
		}
		if nc.fetchBody {
			if body, err := proto.NetworkGetResponseBody{RequestID: e.RequestID}.Call(p); err == nil {
				req.ResponseBody = body.Body
			}
		}

		nc.mu.Lock()
		nc.completed = append(nc.completed, *req)
		nc.mu.Unlock()
	})()

	return nc
}

// Requests returns every completed request/response pair observed so far,
// in the order responses arrived.
func (nc *networkCapture) Requests() []models.NetworkRequest {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	out := make([]models.NetworkRequest, len(nc.completed))
	copy(out, nc.completed)
	return out
}
