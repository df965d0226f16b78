package models

// TenantID is an opaque string identifying the caller for namespacing
// purposes. All persisted data is keyed by (tenant, namespace, entity_key).
type TenantID string

// SharedPoolTenant is the reserved tenant value for the opt-in shared pool.
const SharedPoolTenant TenantID = "__shared_pool__"

// TenantPolicy controls a tenant's participation in the shared pool.
type TenantPolicy struct {
	TenantID       TenantID `json:"tenant_id"`
	SharePatterns  bool     `json:"share_patterns"`
	ConsumeShared  bool     `json:"consume_shared"`
}

// SharedPatternEntry is a pattern contributed to the shared pool, carrying
// its contributor for attribution.
type SharedPatternEntry struct {
	Pattern     ApiPattern `json:"pattern"`
	Contributor TenantID   `json:"contributor"`
	Domain      string     `json:"domain"`
	Category    string     `json:"category"`
}
