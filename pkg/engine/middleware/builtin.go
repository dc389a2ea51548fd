package middleware

import (
	"context"
	"fmt"
	"strings"

	"zagent/pkg/engine/api"
	"zagent/pkg/engine/skill"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// SkillsMiddleware
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// SkillsMiddleware injects active skill content into the prompt.
type SkillsMiddleware struct {
	BaseMiddleware
	SkillIndex skill.SkillIndex
}

// NewSkillsMiddleware creates a new skills middleware.
func NewSkillsMiddleware(idx skill.SkillIndex) *SkillsMiddleware {
	return &SkillsMiddleware{
		BaseMiddleware: NewBaseMiddleware("skills"),
		SkillIndex:     idx,
	}
}

// BeforeTurn injects the active skill content into the prompt.
func (m *SkillsMiddleware) BeforeTurn(ctx context.Context, state *api.State) error {
	if state.ActiveSkill == "" {
		return nil
	}

	sk, err := m.SkillIndex.Load(state.ActiveSkill)
	if err != nil {
		return nil // Skill not found, skip injection
	}

	// Inject skill content with clear boundaries
	skillPrompt := fmt.Sprintf(`
--- BEGIN SKILL: %s ---
%s
--- END SKILL ---
`, sk.Name, sk.Content)

	execRules := `
--- SKILL EXECUTION RULES ---
- Follow the active skill's workflow exactly.
- If the workflow says to create/update/save files, you MUST use tools (e.g. write_file/edit_file/run_skill_script). Do not just describe what you would do.
--- END SKILL EXECUTION RULES ---
`

	state.SystemPrompt = state.SystemPrompt + skillPrompt + execRules

	// Store allowed-tools in metadata for policy to use
	if len(sk.AllowedTools) > 0 {
		if state.Metadata == nil {
			state.Metadata = make(map[string]any)
		}
		state.Metadata["allowed_tools"] = sk.AllowedTools
	}

	return nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// MemoryMiddleware
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// DurableFactsReader loads a project's compacted Context Store v2 snapshot
// (pkg/engine/contextstore), the only place durable cross-session facts
// live — there is no separate memory entry store to read from.
type DurableFactsReader interface {
	LoadSnapshot(projectID uint64) (api.Snapshot, error)
}

// MemoryMiddleware injects a project's durable facts, carried forward by
// Context Store compaction (§4.3), into the system prompt. It only reads;
// facts are written by Store.Compact when a session's window is trimmed.
type MemoryMiddleware struct {
	BaseMiddleware
	Store     DurableFactsReader
	ProjectID uint64
}

// NewMemoryMiddleware creates a new memory middleware bound to one project.
func NewMemoryMiddleware(store DurableFactsReader, projectID uint64) *MemoryMiddleware {
	return &MemoryMiddleware{
		BaseMiddleware: NewBaseMiddleware("memory"),
		Store:          store,
		ProjectID:      projectID,
	}
}

// BeforeTurn injects durable-fact summaries into the prompt.
func (m *MemoryMiddleware) BeforeTurn(ctx context.Context, state *api.State) error {
	if m.Store == nil {
		return nil
	}

	snap, err := m.Store.LoadSnapshot(m.ProjectID)
	if err != nil || len(snap.DurableFacts) == 0 {
		return nil
	}

	facts := snap.DurableFacts
	if len(facts) > 20 {
		facts = facts[len(facts)-20:]
	}

	var memoryLines []string
	for _, f := range facts {
		memoryLines = append(memoryLines, "- "+truncate(f, 200))
	}

	memoryBlock := fmt.Sprintf(`
--- MEMORY ---
%s
--- END MEMORY ---
`, strings.Join(memoryLines, "\n"))

	state.SystemPrompt = state.SystemPrompt + memoryBlock
	return nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// PlanningMiddleware
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// PlanReader reads plan data.
type PlanReader interface {
	Get(ctx context.Context, planID string) (*api.PlanPayload, error)
}

// PlanningMiddleware injects plan progress into the prompt.
// Note: Actual plan updates go through read_todos/write_todos tools.
type PlanningMiddleware struct {
	BaseMiddleware
	Reader PlanReader
}

// NewPlanningMiddleware creates a new planning middleware.
func NewPlanningMiddleware(reader PlanReader) *PlanningMiddleware {
	return &PlanningMiddleware{
		BaseMiddleware: NewBaseMiddleware("planning"),
		Reader:         reader,
	}
}

// BeforeTurn injects plan progress summary.
func (m *PlanningMiddleware) BeforeTurn(ctx context.Context, state *api.State) error {
	if m.Reader == nil {
		return nil
	}

	planID := "plan_" + state.SessionID
	plan, err := m.Reader.Get(ctx, planID)
	if err != nil || plan == nil || len(plan.Items) == 0 {
		return nil
	}

	// Build progress summary
	total := len(plan.Items)
	done := 0
	running := 0
	for _, item := range plan.Items {
		switch item.Status {
		case api.PlanDone:
			done++
		case api.PlanRunning:
			running++
		}
	}

	progressBlock := fmt.Sprintf(`
--- PLAN PROGRESS ---
Total: %d | Done: %d | Running: %d
--- END PLAN ---
`, total, done, running)

	state.SystemPrompt = state.SystemPrompt + progressBlock
	return nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Helpers
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
