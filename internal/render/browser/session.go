package browser

import (
	"context"
	"encoding/json"

	"github.com/fetchkit/browsecore/internal/kv"
	"github.com/fetchkit/browsecore/models"
)

// SessionCookie is the JSON-serializable shape persisted per (tenant, profile).
type SessionCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// SessionState is the full snapshot saved between browser visits for a given
// (tenant, session_profile): cookies plus whatever the page wrote to
// localStorage, keyed by origin so multiple domains under one profile don't
// collide.
type SessionState struct {
	Cookies      []SessionCookie              `json:"cookies"`
	LocalStorage map[string]map[string]string `json:"local_storage"` // origin -> key -> value
}

// SessionStore loads and persists per-(tenant, profile) browser session
// state. Backed by *kv.Store using the kv.NSBrowserSessions namespace so
// cookies and localStorage survive across fetches and process restarts,
// the way this system requires for session-scoped crawls.
type SessionStore interface {
	Load(ctx context.Context, tenant models.TenantID, profile string) (*SessionState, error)
	Save(ctx context.Context, tenant models.TenantID, profile string, state *SessionState) error
}

// kvSessionStore is the *kv.Store-backed SessionStore implementation.
type kvSessionStore struct {
	store *kv.Store
}

// NewKVSessionStore builds a SessionStore backed by store.
func NewKVSessionStore(store *kv.Store) SessionStore {
	return &kvSessionStore{store: store}
}

func (k *kvSessionStore) Load(ctx context.Context, tenant models.TenantID, profile string) (*SessionState, error) {
	raw, ok, err := k.store.Get(ctx, tenant, kv.NSBrowserSessions, profile)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &SessionState{LocalStorage: make(map[string]map[string]string)}, nil
	}
	var state SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, models.NewCoreError(models.ErrCodeInternal, "unmarshal browser session state", err)
	}
	if state.LocalStorage == nil {
		state.LocalStorage = make(map[string]map[string]string)
	}
	return &state, nil
}

func (k *kvSessionStore) Save(ctx context.Context, tenant models.TenantID, profile string, state *SessionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return models.NewCoreError(models.ErrCodeInternal, "marshal browser session state", err)
	}
	return k.store.Put(ctx, tenant, kv.NSBrowserSessions, profile, raw, kv.EntryMeta{})
}
