// Package memory implements Procedural Memory (spec §4.10): trajectory
// recording, opportunistic skill distillation, and weighted skill
// retrieval/execution tracking, all backed by internal/kv.
//
// Skill-similarity scoring reuses purify's own simhash package — a
// 64-bit SimHash already used for DOM-structure comparison
// (simhash/dom.go) — as the "embedding cosine if available" signal the
// spec allows, computed over a page's available selectors when no richer
// embedding has been supplied.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fetchkit/browsecore/internal/kv"
	"github.com/fetchkit/browsecore/models"
	"github.com/fetchkit/browsecore/simhash"
)

// minTrajectoriesForSkill is K in spec §4.10's "skill extraction runs
// opportunistically when >= K similar successful trajectories exist".
const minTrajectoriesForSkill = 3

// skillSuccessAlpha is record_skill_execution's exponential-moving
// success-rate update weight.
const skillSuccessAlpha = 0.2

// similarity weights, spec §4.10.
const (
	weightPageType       = 0.4
	weightSelectorOverlap = 0.3
	weightFeatureOverlap  = 0.2
	weightEmbedding       = 0.1
)

// Memory owns the trajectory log and distilled skill set.
type Memory struct {
	store *kv.Store
}

// New builds a Memory backed by store.
func New(store *kv.Store) *Memory {
	return &Memory{store: store}
}

// RecordTrajectory persists traj and opportunistically distills a skill
// once enough similar successful trajectories have accumulated for its
// domain/page-type pair.
func (m *Memory) RecordTrajectory(ctx context.Context, tenant models.TenantID, traj models.BrowsingTrajectory) error {
	if traj.ID == "" {
		traj.ID = fmt.Sprintf("traj-%s-%s", traj.Domain, uuid.NewString())
	}
	raw, err := json.Marshal(traj)
	if err != nil {
		return models.NewCoreError(models.ErrCodeInternal, "marshal trajectory", err)
	}
	if err := m.store.Put(ctx, tenant, kv.NSTrajectories, traj.ID, raw, kv.EntryMeta{Domain: traj.Domain}); err != nil {
		return err
	}
	if !traj.Success {
		return nil
	}
	return m.maybeDistillSkill(ctx, tenant, traj)
}

func (m *Memory) allTrajectories(ctx context.Context, tenant models.TenantID) ([]models.BrowsingTrajectory, error) {
	raw, err := m.store.GetAll(ctx, tenant, kv.NSTrajectories)
	if err != nil {
		return nil, err
	}
	out := make([]models.BrowsingTrajectory, 0, len(raw))
	for _, v := range raw {
		var t models.BrowsingTrajectory
		if err := json.Unmarshal(v, &t); err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *Memory) allSkills(ctx context.Context, tenant models.TenantID) ([]models.BrowsingSkill, error) {
	raw, err := m.store.GetAll(ctx, tenant, kv.NSSkills)
	if err != nil {
		return nil, err
	}
	out := make([]models.BrowsingSkill, 0, len(raw))
	for _, v := range raw {
		var s models.BrowsingSkill
		if err := json.Unmarshal(v, &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *Memory) putSkill(ctx context.Context, tenant models.TenantID, skill *models.BrowsingSkill) error {
	raw, err := json.Marshal(skill)
	if err != nil {
		return models.NewCoreError(models.ErrCodeInternal, "marshal skill", err)
	}
	return m.store.Put(ctx, tenant, kv.NSSkills, skill.ID, raw, kv.EntryMeta{Domain: skill.Domain})
}

// maybeDistillSkill looks for minTrajectoriesForSkill-1 other successful
// trajectories sharing traj's domain and start-URL path shape, and if
// found, distills a new skill from their longest common action
// subsequence — unless a skill already covers this domain/page shape, in
// which case nothing new is created (the existing skill accrues uses
// through record_skill_execution instead).
func (m *Memory) maybeDistillSkill(ctx context.Context, tenant models.TenantID, traj models.BrowsingTrajectory) error {
	all, err := m.allTrajectories(ctx, tenant)
	if err != nil {
		return err
	}

	group := []models.BrowsingTrajectory{traj}
	for _, t := range all {
		if t.ID == traj.ID || !t.Success || t.Domain != traj.Domain {
			continue
		}
		if pathShape(t.StartURL) != pathShape(traj.StartURL) {
			continue
		}
		group = append(group, t)
	}
	if len(group) < minTrajectoriesForSkill {
		return nil
	}

	skills, err := m.allSkills(ctx, tenant)
	if err != nil {
		return err
	}
	skillName := skillNameFor(traj.Domain, pathShape(traj.StartURL))
	for _, s := range skills {
		if s.Name == skillName {
			return nil
		}
	}

	actions := longestCommonActionSubsequence(group)
	if len(actions) == 0 {
		return nil
	}

	skill := &models.BrowsingSkill{
		ID:             fmt.Sprintf("skill-%s-%s", skillName, uuid.NewString()),
		Name:           skillName,
		Domain:         traj.Domain,
		PageType:       models.PageUnknown,
		Preconditions:  derivePreconditions(group),
		ActionSequence: actions,
		SuccessRate:    1,
	}
	return m.putSkill(ctx, tenant, skill)
}

// pathShape reduces a URL to a coarse shape used to group trajectories for
// distillation: the path with any all-digit segment replaced by a
// wildcard, mirroring the selector generalization spec §4.10 describes for
// the distilled action sequence itself.
func pathShape(rawURL string) string {
	idx := strings.Index(rawURL, "://")
	path := rawURL
	if idx >= 0 {
		if slash := strings.Index(rawURL[idx+3:], "/"); slash >= 0 {
			path = rawURL[idx+3+slash:]
		} else {
			path = "/"
		}
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg != "" && isAllDigits(seg) {
			segments[i] = "*"
		}
	}
	return strings.Join(segments, "/")
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func skillNameFor(domain, shape string) string {
	return domain + shape
}

// longestCommonActionSubsequence takes the shortest trajectory's action
// types as the reference ordering and keeps only the actions appearing, in
// order, across every trajectory in the group — approximating spec
// §4.10's "longest common action subsequence" without requiring a full
// multi-sequence LCS for what is in practice only a handful of short
// trajectories. Selectors are generalized by replacing any numeric index
// token with a wildcard (spec's "selectors generalised by replacing
// numeric indices with wildcards").
func longestCommonActionSubsequence(group []models.BrowsingTrajectory) []models.BrowsingAction {
	if len(group) == 0 {
		return nil
	}
	shortest := group[0].Actions
	for _, t := range group[1:] {
		if len(t.Actions) < len(shortest) {
			shortest = t.Actions
		}
	}

	var common []models.BrowsingAction
	for _, candidate := range shortest {
		sharedByAll := true
		for _, t := range group {
			if !containsActionType(t.Actions, candidate.Type, candidate.Selector) {
				sharedByAll = false
				break
			}
		}
		if sharedByAll {
			candidate.Selector = generalizeSelector(candidate.Selector)
			common = append(common, candidate)
		}
	}
	return common
}

func containsActionType(actions []models.BrowsingAction, t models.ActionType, selector string) bool {
	for _, a := range actions {
		if a.Type == t && generalizeSelector(a.Selector) == generalizeSelector(selector) {
			return true
		}
	}
	return false
}

func generalizeSelector(selector string) string {
	var sb strings.Builder
	for _, r := range selector {
		if r >= '0' && r <= '9' {
			sb.WriteByte('#')
			continue
		}
		sb.WriteRune(r)
	}
	return collapseWildcards(sb.String())
}

func collapseWildcards(s string) string {
	for strings.Contains(s, "##") {
		s = strings.ReplaceAll(s, "##", "#")
	}
	return s
}

func derivePreconditions(group []models.BrowsingTrajectory) models.Preconditions {
	selectorSet := map[string]struct{}{}
	for _, t := range group {
		for _, a := range t.Actions {
			if a.Selector != "" {
				selectorSet[generalizeSelector(a.Selector)] = struct{}{}
			}
		}
	}
	selectors := make([]string, 0, len(selectorSet))
	for s := range selectorSet {
		selectors = append(selectors, s)
	}
	sort.Strings(selectors)
	return models.Preconditions{RequiredSelectors: selectors}
}

// RetrieveSkills ranks domain-matching skills against ctx by the weighted
// similarity spec §4.10 defines, returning the topK highest scorers.
func (m *Memory) RetrieveSkills(ctxb context.Context, tenant models.TenantID, pageCtx models.PageContext, topK int) ([]models.SkillMatch, error) {
	skills, err := m.allSkills(ctxb, tenant)
	if err != nil {
		return nil, err
	}

	matches := make([]models.SkillMatch, 0, len(skills))
	for _, skill := range skills {
		if skill.Domain != pageCtx.Domain {
			continue
		}
		sim, reason := similarity(skill, pageCtx)
		met, missing := preconditionsMet(skill.Preconditions, pageCtx.AvailableSelectors)
		if !met {
			reason += fmt.Sprintf("; missing selectors: %s", strings.Join(missing, ", "))
		}
		matches = append(matches, models.SkillMatch{
			Skill:            skill,
			Similarity:       sim,
			PreconditionsMet: met,
			Reason:           reason,
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func similarity(skill models.BrowsingSkill, pageCtx models.PageContext) (float64, string) {
	var score float64
	var reasons []string

	if skill.PageType == pageCtx.PageType {
		score += weightPageType
		reasons = append(reasons, "page_type match")
	}

	overlap := selectorOverlap(skill.Preconditions.RequiredSelectors, pageCtx.AvailableSelectors)
	score += weightSelectorOverlap * overlap

	features := pageFeatures(pageCtx)
	featureOverlap := stringSetOverlap(skill.Preconditions.PageFeatures, features)
	score += weightFeatureOverlap * featureOverlap

	if len(skill.Embedding) > 0 {
		score += weightEmbedding * embeddingCosine(skill.Embedding, selectorEmbedding(pageCtx.AvailableSelectors))
	} else {
		fp := simhash.Fingerprint(strings.Join(pageCtx.AvailableSelectors, " "))
		skillFp := simhash.Fingerprint(strings.Join(skill.Preconditions.RequiredSelectors, " "))
		score += weightEmbedding * (1 - float64(simhash.Distance(fp, skillFp))/64)
	}

	reasons = append(reasons, fmt.Sprintf("selector_overlap=%.2f feature_overlap=%.2f", overlap, featureOverlap))
	return score, strings.Join(reasons, ", ")
}

func selectorOverlap(required, available []string) float64 {
	if len(required) == 0 {
		return 1
	}
	availSet := map[string]struct{}{}
	for _, a := range available {
		availSet[a] = struct{}{}
	}
	hits := 0
	for _, r := range required {
		if _, ok := availSet[r]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(required))
}

func stringSetOverlap(a, b []string) float64 {
	if len(a) == 0 {
		return 1
	}
	bSet := map[string]struct{}{}
	for _, x := range b {
		bSet[x] = struct{}{}
	}
	hits := 0
	for _, x := range a {
		if _, ok := bSet[x]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}

func pageFeatures(pageCtx models.PageContext) []string {
	var features []string
	if pageCtx.HasForm {
		features = append(features, "has_form")
	}
	if pageCtx.HasPagination {
		features = append(features, "has_pagination")
	}
	if pageCtx.HasTable {
		features = append(features, "has_table")
	}
	return features
}

// selectorEmbedding is a crude numeric stand-in used only when a skill
// carries an explicit Embedding to compare against: 64 dimensions, one per
// bit of the SimHash fingerprint of all selectors joined, unpacked to +/-1,
// matching the polarity convention simhash.Fingerprint itself accumulates
// over.
func selectorEmbedding(selectors []string) []float64 {
	fp := simhash.Fingerprint(strings.Join(selectors, " "))
	out := make([]float64, 64)
	for i := 0; i < 64; i++ {
		if fp&(1<<uint(i)) != 0 {
			out[i] = 1
		} else {
			out[i] = -1
		}
	}
	return out
}

func embeddingCosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (sqrt(normA) * sqrt(normB))
}

// sqrt avoids pulling in math for a single call site used only in a
// fallback cosine path; Newton's method converges in a handful of
// iterations for the small magnitudes involved here.
func sqrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

func preconditionsMet(pre models.Preconditions, available []string) (bool, []string) {
	availSet := map[string]struct{}{}
	for _, a := range available {
		availSet[a] = struct{}{}
	}
	var missing []string
	for _, sel := range pre.RequiredSelectors {
		if _, ok := availSet[sel]; !ok {
			missing = append(missing, sel)
		}
	}
	return len(missing) == 0, missing
}

// RecordSkillExecution updates skillID's uses and exponential-moving
// success rate (alpha=0.2, spec §4.10) after an execution attempt.
func (m *Memory) RecordSkillExecution(ctx context.Context, tenant models.TenantID, skillID string, success bool, duration time.Duration) error {
	raw, ok, err := m.store.Get(ctx, tenant, kv.NSSkills, skillID)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewCoreError(models.ErrCodeInvalidInput, fmt.Sprintf("unknown skill %q", skillID), nil)
	}
	var skill models.BrowsingSkill
	if err := json.Unmarshal(raw, &skill); err != nil {
		return models.NewCoreError(models.ErrCodeInternal, "unmarshal skill", err)
	}

	skill.Uses++
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	if skill.Uses == 1 {
		skill.SuccessRate = outcome
	} else {
		skill.SuccessRate = skillSuccessAlpha*outcome + (1-skillSuccessAlpha)*skill.SuccessRate
	}
	return m.putSkill(ctx, tenant, &skill)
}

// GetStats summarizes the tenant's recorded trajectories and skills.
func (m *Memory) GetStats(ctx context.Context, tenant models.TenantID) (models.MemoryStats, error) {
	trajectories, err := m.allTrajectories(ctx, tenant)
	if err != nil {
		return models.MemoryStats{}, err
	}
	skills, err := m.allSkills(ctx, tenant)
	if err != nil {
		return models.MemoryStats{}, err
	}

	perDomain := map[string]int{}
	for _, t := range trajectories {
		perDomain[t.Domain]++
	}

	sort.Slice(skills, func(i, j int) bool { return skills[i].Uses > skills[j].Uses })
	topN := skills
	if len(topN) > 5 {
		topN = topN[:5]
	}
	mostUsed := make([]string, 0, len(topN))
	for _, s := range topN {
		mostUsed = append(mostUsed, s.Name)
	}

	return models.MemoryStats{
		TotalTrajectories: len(trajectories),
		TotalSkills:       len(skills),
		PerDomainCounts:   perDomain,
		MostUsedSkills:    mostUsed,
	}, nil
}

// ExecuteSkill runs skill's action sequence against executor, skipping the
// first navigate action (the caller has already navigated there per spec
// §4.10). click/fill/select are critical: the first such failure aborts
// execution and sets UsedFallback; scroll/wait/extract/dismiss_banner
// failures are recorded but do not stop the sequence.
func (m *Memory) ExecuteSkill(ctx context.Context, skill models.BrowsingSkill, executor ActionExecutor) models.SkillExecutionTrace {
	trace := models.SkillExecutionTrace{SkillID: skill.ID}

	skippedFirstNavigate := false
	for _, action := range skill.ActionSequence {
		if !skippedFirstNavigate && action.Type == models.ActionNavigate {
			skippedFirstNavigate = true
			continue
		}

		start := time.Now()
		err := executor.Execute(ctx, action)
		result := models.ActionResult{
			Type:     action.Type,
			Selector: action.Selector,
			Success:  err == nil,
			Duration: time.Since(start),
		}
		if err != nil {
			result.Error = err.Error()
		}
		trace.Actions = append(trace.Actions, result)
		trace.ActionsExecuted++

		if err != nil && action.Type.Critical() {
			trace.UsedFallback = true
			return trace
		}
	}
	return trace
}

// ActionExecutor runs one BrowsingAction against a live page handle. The
// Full Browser Renderer implements this to let ExecuteSkill stay decoupled
// from any specific browser automation library.
type ActionExecutor interface {
	Execute(ctx context.Context, action models.BrowsingAction) error
}
