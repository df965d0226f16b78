package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fetchkit/browsecore/internal/kv"
	"github.com/fetchkit/browsecore/models"
)

const testTenant = models.TenantID("tenant-a")

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	store, err := kv.Open(":memory:")
	if err != nil {
		t.Fatalf("open kv store: %v", err)
	}
	return New(store)
}

func sampleTrajectory(id, startURL string) models.BrowsingTrajectory {
	return models.BrowsingTrajectory{
		ID:       id,
		Domain:   "shop.example.com",
		StartURL: startURL,
		EndURL:   startURL,
		Success:  true,
		Actions: []models.BrowsingAction{
			{Type: models.ActionNavigate, URL: startURL, Success: true},
			{Type: models.ActionClick, Selector: "#buy-1", Success: true},
			{Type: models.ActionExtract, Success: true},
		},
	}
}

func TestRecordTrajectoryPersists(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	if err := m.RecordTrajectory(ctx, testTenant, sampleTrajectory("t1", "https://shop.example.com/item/1")); err != nil {
		t.Fatalf("RecordTrajectory: %v", err)
	}
	stats, err := m.GetStats(ctx, testTenant)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalTrajectories != 1 {
		t.Fatalf("expected 1 trajectory, got %d", stats.TotalTrajectories)
	}
}

func TestSkillDistilledAfterKSimilarTrajectories(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	urls := []string{
		"https://shop.example.com/item/1",
		"https://shop.example.com/item/2",
		"https://shop.example.com/item/3",
	}
	for i, u := range urls {
		traj := sampleTrajectory("", u)
		traj.Actions[1].Selector = "#buy-42"
		if err := m.RecordTrajectory(ctx, testTenant, traj); err != nil {
			t.Fatalf("RecordTrajectory %d: %v", i, err)
		}
	}

	stats, err := m.GetStats(ctx, testTenant)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalSkills != 1 {
		t.Fatalf("expected exactly 1 distilled skill after %d similar trajectories, got %d", minTrajectoriesForSkill, stats.TotalSkills)
	}
}

func TestSkillNotDistilledBelowThreshold(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	for i := 0; i < minTrajectoriesForSkill-1; i++ {
		traj := sampleTrajectory("", "https://shop.example.com/item/1")
		if err := m.RecordTrajectory(ctx, testTenant, traj); err != nil {
			t.Fatalf("RecordTrajectory: %v", err)
		}
	}
	stats, err := m.GetStats(ctx, testTenant)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalSkills != 0 {
		t.Fatalf("expected no distilled skill below threshold, got %d", stats.TotalSkills)
	}
}

func TestRetrieveSkillsMatchesOnSelectorPreconditions(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	for i := 0; i < minTrajectoriesForSkill; i++ {
		traj := sampleTrajectory("", "https://shop.example.com/item/1")
		if err := m.RecordTrajectory(ctx, testTenant, traj); err != nil {
			t.Fatalf("RecordTrajectory: %v", err)
		}
	}

	pageCtx := models.PageContext{
		Domain:             "shop.example.com",
		PageType:           models.PageDetail,
		AvailableSelectors: []string{"#buy-#"},
	}
	matches, err := m.RetrieveSkills(ctx, testTenant, pageCtx, 5)
	if err != nil {
		t.Fatalf("RetrieveSkills: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 skill match, got %d", len(matches))
	}
	if !matches[0].PreconditionsMet {
		t.Fatalf("expected preconditions met, got %+v", matches[0])
	}
	if matches[0].Similarity <= 0 {
		t.Fatalf("expected positive similarity, got %f", matches[0].Similarity)
	}
}

func TestRetrieveSkillsFiltersByDomain(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	for i := 0; i < minTrajectoriesForSkill; i++ {
		if err := m.RecordTrajectory(ctx, testTenant, sampleTrajectory("", "https://shop.example.com/item/1")); err != nil {
			t.Fatalf("RecordTrajectory: %v", err)
		}
	}

	matches, err := m.RetrieveSkills(ctx, testTenant, models.PageContext{Domain: "other.example.com"}, 5)
	if err != nil {
		t.Fatalf("RetrieveSkills: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches for unrelated domain, got %d", len(matches))
	}
}

func TestRecordSkillExecutionUpdatesSuccessRate(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	for i := 0; i < minTrajectoriesForSkill; i++ {
		if err := m.RecordTrajectory(ctx, testTenant, sampleTrajectory("", "https://shop.example.com/item/1")); err != nil {
			t.Fatalf("RecordTrajectory: %v", err)
		}
	}
	matches, err := m.RetrieveSkills(ctx, testTenant, models.PageContext{Domain: "shop.example.com"}, 1)
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one skill, got %v err=%v", matches, err)
	}
	skillID := matches[0].Skill.ID

	if err := m.RecordSkillExecution(ctx, testTenant, skillID, true, time.Millisecond); err != nil {
		t.Fatalf("RecordSkillExecution: %v", err)
	}
	if err := m.RecordSkillExecution(ctx, testTenant, skillID, false, time.Millisecond); err != nil {
		t.Fatalf("RecordSkillExecution: %v", err)
	}

	matches, err = m.RetrieveSkills(ctx, testTenant, models.PageContext{Domain: "shop.example.com"}, 1)
	if err != nil {
		t.Fatalf("RetrieveSkills: %v", err)
	}
	got := matches[0].Skill
	if got.Uses != 2 {
		t.Fatalf("expected 2 uses, got %d", got.Uses)
	}
	if got.SuccessRate >= 1 {
		t.Fatalf("expected success rate to have decayed below 1 after a failure, got %f", got.SuccessRate)
	}
}

type stubExecutor struct {
	fail map[int]bool
	n    int
}

func (s *stubExecutor) Execute(ctx context.Context, action models.BrowsingAction) error {
	defer func() { s.n++ }()
	if s.fail[s.n] {
		return errors.New("boom")
	}
	return nil
}

func TestExecuteSkillSkipsFirstNavigateAndAbortsOnCriticalFailure(t *testing.T) {
	skill := models.BrowsingSkill{
		ID: "skill-1",
		ActionSequence: []models.BrowsingAction{
			{Type: models.ActionNavigate},
			{Type: models.ActionClick, Selector: "#a"},
			{Type: models.ActionWait},
			{Type: models.ActionExtract},
		},
	}
	exec := &stubExecutor{fail: map[int]bool{0: true}}
	trace := (&Memory{}).ExecuteSkill(context.Background(), skill, exec)

	if !trace.UsedFallback {
		t.Fatal("expected used_fallback after critical action failure")
	}
	if trace.ActionsExecuted != 1 {
		t.Fatalf("expected execution to stop after the first (critical) action, got %d executed", trace.ActionsExecuted)
	}
}

func TestExecuteSkillContinuesPastNonCriticalFailure(t *testing.T) {
	skill := models.BrowsingSkill{
		ID: "skill-2",
		ActionSequence: []models.BrowsingAction{
			{Type: models.ActionNavigate},
			{Type: models.ActionWait},
			{Type: models.ActionExtract},
		},
	}
	exec := &stubExecutor{fail: map[int]bool{0: true}}
	trace := (&Memory{}).ExecuteSkill(context.Background(), skill, exec)

	if trace.UsedFallback {
		t.Fatal("expected no fallback for non-critical action failures")
	}
	if trace.ActionsExecuted != 2 {
		t.Fatalf("expected both remaining actions to run, got %d", trace.ActionsExecuted)
	}
}
