package browser

import (
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/fetchkit/browsecore/engine"
)

// tenantPool wires purify's adaptive pool to real *rod.Page resources,
// scoped to a single (tenant, session_profile) pair instead of purify's
// single global rod.Pool[rod.Page]. The AdaptivePool only ever sees int64
// handle IDs; this type owns the mapping from an ID back to its live page.
type tenantPool struct {
	ap      *engine.AdaptivePool
	browser *rod.Browser

	mu     sync.Mutex
	pages  map[int64]*rod.Page
	nextID atomic.Int64
}

func newTenantPool(browser *rod.Browser, cfg engine.AdaptivePoolConfig) (*tenantPool, error) {
	tp := &tenantPool{
		browser: browser,
		pages:   make(map[int64]*rod.Page),
	}
	ap, err := engine.NewAdaptivePool(cfg, tp.createPage, tp.destroyPage)
	if err != nil {
		return nil, err
	}
	tp.ap = ap
	return tp, nil
}

func (tp *tenantPool) createPage() (int64, error) {
	page, err := tp.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return 0, err
	}
	id := tp.nextID.Add(1)
	tp.mu.Lock()
	tp.pages[id] = page
	tp.mu.Unlock()
	return id, nil
}

func (tp *tenantPool) destroyPage(id int64) {
	tp.mu.Lock()
	page, ok := tp.pages[id]
	delete(tp.pages, id)
	tp.mu.Unlock()
	if ok {
		_ = page.Close()
	}
}

// Get borrows a handle and its backing page. Callers must call Put exactly
// once with the same handle to return or retire it.
func (tp *tenantPool) Get() (*engine.PageHandle, *rod.Page, error) {
	h, err := tp.ap.Get()
	if err != nil {
		return nil, nil, err
	}
	tp.mu.Lock()
	page := tp.pages[h.ID]
	tp.mu.Unlock()
	return h, page, nil
}

// Put returns h to the pool, recording success/failure for health scoring.
func (tp *tenantPool) Put(h *engine.PageHandle, success bool) {
	tp.ap.Put(h, success)
}

// Stop drains the pool and closes every backing page.
func (tp *tenantPool) Stop() {
	tp.ap.Stop()
}
