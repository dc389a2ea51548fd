// Package systool holds the tool-calling surface of the Model Execution
// Loop that is not file/shell I/O: skill lookup for the skill-file
// placement rule, and the plan/TodoList handle the Session Manager owns
// for the duration of a turn (§4.1, §5). Plan items stay in PlanStore for
// the loop's own bookkeeping, but everything surfaced outward — the
// streamed "plan updated" event, the retained session summary — is a
// single-line digest, never the raw item list.
package systool

import (
	"context"
	"encoding/json"
	"fmt"

	"zagent/pkg/engine/api"
	"zagent/pkg/engine/skill"
	"zagent/pkg/engine/store"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Skills Tools
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// ListSkillsTool lists all available skills.
type ListSkillsTool struct {
	SkillIndex skill.SkillIndex
}

func (t *ListSkillsTool) Name() string        { return "list_skills" }
func (t *ListSkillsTool) Description() string { return "List all available skills" }
func (t *ListSkillsTool) Risk() api.RiskLevel { return api.RiskNone }
func (t *ListSkillsTool) Schema() api.ToolSchema {
	return api.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func (t *ListSkillsTool) Execute(ctx context.Context, args api.Args) (api.ToolResult, error) {
	skills := t.SkillIndex.List()

	data := map[string]any{
		"skills": skills,
	}
	content, _ := json.MarshalIndent(data, "", "  ")
	return api.ToolResult{Content: string(content), Status: "success", Data: data}, nil
}

// ReadSkillTool reads skill content.
type ReadSkillTool struct {
	SkillIndex skill.SkillIndex
}

func (t *ReadSkillTool) Name() string        { return "read_skill" }
func (t *ReadSkillTool) Description() string { return "Read skill content by name" }
func (t *ReadSkillTool) Risk() api.RiskLevel { return api.RiskNone }
func (t *ReadSkillTool) Schema() api.ToolSchema {
	return api.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{"type": "string", "description": "Skill name"},
				"section": map[string]any{
					"type":        "string",
					"description": "Which part to return: all/frontmatter/content/scripts/references/assets",
				},
			},
			"required": []string{"name"},
		},
	}
}

func (t *ReadSkillTool) Execute(ctx context.Context, args api.Args) (api.ToolResult, error) {
	name, ok := args["name"].(string)
	if !ok || name == "" {
		return api.ToolResult{Status: "error", Error: "name argument required"}, nil
	}

	section, _ := args["section"].(string)
	if section == "" {
		section = "all"
	}

	sk, err := t.SkillIndex.Load(name)
	if err != nil {
		return api.ToolResult{Status: "error", Error: err.Error()}, nil
	}

	var data any
	switch section {
	case "frontmatter":
		data = map[string]any{"skill": sk.SkillMeta}
	case "content":
		data = map[string]any{"content": sk.Content}
	case "scripts":
		data = map[string]any{"scripts": sk.Scripts}
	case "references":
		data = map[string]any{"references": sk.References}
	case "assets":
		data = map[string]any{"assets": sk.Assets}
	default:
		data = map[string]any{"skill": sk}
	}

	content, _ := json.MarshalIndent(data, "", "  ")
	return api.ToolResult{Content: string(content), Status: "success", Data: data}, nil
}

// ActivateSkillTool activates a skill for the session.
type ActivateSkillTool struct {
	SkillIndex skill.SkillIndex
}

func (t *ActivateSkillTool) Name() string        { return "activate_skill" }
func (t *ActivateSkillTool) Description() string { return "Activate a skill for the current session" }
func (t *ActivateSkillTool) Risk() api.RiskLevel { return api.RiskLow }
func (t *ActivateSkillTool) Schema() api.ToolSchema {
	return api.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{"type": "string", "description": "Skill name"},
			},
			"required": []string{"name"},
		},
	}
}

func (t *ActivateSkillTool) Execute(ctx context.Context, args api.Args) (api.ToolResult, error) {
	name, ok := args["name"].(string)
	if !ok || name == "" {
		return api.ToolResult{Status: "error", Error: "name argument required"}, nil
	}

	// Verify skill exists
	var meta api.SkillMeta
	if g, ok := t.SkillIndex.(interface {
		Get(name string) (api.SkillMeta, bool)
	}); ok {
		m, exists := g.Get(name)
		if !exists {
			return api.ToolResult{Status: "error", Error: fmt.Sprintf("skill not found: %s", name)}, nil
		}
		meta = m
	} else {
		sk, err := t.SkillIndex.Load(name)
		if err != nil {
			return api.ToolResult{Status: "error", Error: fmt.Sprintf("skill not found: %s", name)}, nil
		}
		meta = sk.SkillMeta
	}

	data := map[string]any{"active": meta}
	content, _ := json.MarshalIndent(data, "", "  ")
	return api.ToolResult{Content: string(content), Status: "success", Data: data}, nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Plan Tools
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// ReadTodosTool reads the current plan.
type ReadTodosTool struct {
	PlanStore store.PlanStore
}

func (t *ReadTodosTool) Name() string        { return "read_todos" }
func (t *ReadTodosTool) Description() string { return "Read the current plan/todos" }
func (t *ReadTodosTool) Risk() api.RiskLevel { return api.RiskNone }
func (t *ReadTodosTool) Schema() api.ToolSchema {
	return api.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"plan_id": map[string]any{"type": "string", "description": "Optional explicit plan id (default: plan_<sessionID>)"},
			},
		},
	}
}

func (t *ReadTodosTool) Execute(ctx context.Context, args api.Args) (api.ToolResult, error) {
	planID, _ := args["plan_id"].(string)
	if planID == "" {
		sessionID, _ := args["session_id"].(string)
		if sessionID == "" {
			return api.ToolResult{Status: "error", Error: "session_id missing (engine should inject)"}, nil
		}
		planID = "plan_" + sessionID
	}

	plan, err := t.PlanStore.Get(ctx, planID)
	if err != nil {
		if err == store.ErrNotFound {
			data := map[string]any{"plan_id": planID, "items": []any{}, "summary": "no plan yet"}
			content, _ := json.MarshalIndent(data, "", "  ")
			return api.ToolResult{Content: string(content), Status: "success", Data: data}, nil
		}
		return api.ToolResult{Status: "error", Error: err.Error()}, nil
	}

	data := map[string]any{"plan_id": plan.PlanID, "items": plan.Items, "summary": summarizePlan(plan)}
	content, _ := json.MarshalIndent(data, "", "  ")
	return api.ToolResult{Content: string(content), Status: "success", Data: data}, nil
}

// summarizePlan condenses a plan into the one-line digest that is all the
// Session Manager retains or streams outward — the full item list stays
// internal to the loop's plan-tool bookkeeping.
func summarizePlan(plan *api.PlanPayload) string {
	if plan == nil || len(plan.Items) == 0 {
		return "no items"
	}
	done := 0
	for _, item := range plan.Items {
		if item.Status == api.PlanDone {
			done++
		}
	}
	next := ""
	for _, item := range plan.Items {
		if item.Status != api.PlanDone {
			next = item.Text
			break
		}
	}
	if next == "" {
		return fmt.Sprintf("%d/%d done", done, len(plan.Items))
	}
	return fmt.Sprintf("%d/%d done, next: %s", done, len(plan.Items), next)
}

// WriteTodosTool writes to the plan.
type WriteTodosTool struct {
	PlanStore store.PlanStore
}

func (t *WriteTodosTool) Name() string        { return "write_todos" }
func (t *WriteTodosTool) Description() string { return "Create or update the plan/todos" }
func (t *WriteTodosTool) Risk() api.RiskLevel { return api.RiskHigh }
func (t *WriteTodosTool) Schema() api.ToolSchema {
	return api.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"plan_id": map[string]any{"type": "string", "description": "Optional explicit plan id (default: plan_<sessionID>)"},
				"mode":    map[string]any{"type": "string", "description": "set | append | patch"},
				"items": map[string]any{
					"type":        "array",
					"description": "Items for set/append",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"id":     map[string]any{"type": "integer"},
							"text":   map[string]any{"type": "string"},
							"status": map[string]any{"type": "string"},
						},
					},
				},
				"patches": map[string]any{
					"type":        "array",
					"description": "Patches for patch mode",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"id":     map[string]any{"type": "integer"},
							"text":   map[string]any{"type": "string"},
							"status": map[string]any{"type": "string"},
							"delete": map[string]any{"type": "boolean"},
						},
					},
				},
			},
		},
	}
}

func (t *WriteTodosTool) Execute(ctx context.Context, args api.Args) (api.ToolResult, error) {
	planID, _ := args["plan_id"].(string)
	if planID == "" {
		sessionID, _ := args["session_id"].(string)
		if sessionID == "" {
			return api.ToolResult{Status: "error", Error: "session_id missing (engine should inject)"}, nil
		}
		planID = "plan_" + sessionID
	}

	mode, _ := args["mode"].(string)
	if mode == "" {
		mode = "set"
	}

	// Parse items
	var newItems []api.PlanItem
	if itemsRaw, ok := args["items"].([]any); ok {
		for _, item := range itemsRaw {
			if itemMap, ok := item.(map[string]any); ok {
				pi := api.PlanItem{}
				if id, ok := itemMap["id"].(float64); ok {
					pi.ID = int(id)
				}
				if text, ok := itemMap["text"].(string); ok {
					pi.Text = text
				}
				if status, ok := itemMap["status"].(string); ok {
					pi.Status = api.PlanItemStatus(status)
				} else {
					pi.Status = api.PlanPending
				}
				newItems = append(newItems, pi)
			}
		}
	}

	var plan *api.PlanPayload

	switch mode {
	case "set":
		plan = &api.PlanPayload{
			PlanID: planID,
			Items:  newItems,
		}

	case "append":
		existing, err := t.PlanStore.Get(ctx, planID)
		if err != nil && err != store.ErrNotFound {
			return api.ToolResult{Status: "error", Error: err.Error()}, nil
		}
		if existing == nil {
			existing = &api.PlanPayload{PlanID: planID}
		}
		// Auto-assign IDs for append
		maxID := 0
		for _, item := range existing.Items {
			if item.ID > maxID {
				maxID = item.ID
			}
		}
		for i := range newItems {
			if newItems[i].ID == 0 {
				maxID++
				newItems[i].ID = maxID
			}
		}
		existing.Items = append(existing.Items, newItems...)
		plan = existing

	case "patch":
		existing, err := t.PlanStore.Get(ctx, planID)
		if err != nil {
			return api.ToolResult{Status: "error", Error: err.Error()}, nil
		}

		// Apply patches
		if patchesRaw, ok := args["patches"].([]any); ok {
			for _, p := range patchesRaw {
				if patchMap, ok := p.(map[string]any); ok {
					id := 0
					if idFloat, ok := patchMap["id"].(float64); ok {
						id = int(idFloat)
					}
					if id == 0 {
						continue
					}

					for i := range existing.Items {
						if existing.Items[i].ID == id {
							if text, ok := patchMap["text"].(string); ok {
								existing.Items[i].Text = text
							}
							if status, ok := patchMap["status"].(string); ok {
								existing.Items[i].Status = api.PlanItemStatus(status)
							}
							if del, ok := patchMap["delete"].(bool); ok && del {
								existing.Items = append(existing.Items[:i], existing.Items[i+1:]...)
							}
							break
						}
					}
				}
			}
		}
		plan = existing

	default:
		return api.ToolResult{Status: "error", Error: "invalid mode: " + mode}, nil
	}

	// Validate unique IDs
	idSeen := make(map[int]bool)
	for _, item := range plan.Items {
		if idSeen[item.ID] {
			return api.ToolResult{Status: "error", Error: fmt.Sprintf("duplicate item ID: %d", item.ID)}, nil
		}
		idSeen[item.ID] = true
	}

	// Save
	if err := t.PlanStore.Put(ctx, planID, plan); err != nil {
		return api.ToolResult{Status: "error", Error: err.Error()}, nil
	}

	data := map[string]any{"plan_id": plan.PlanID, "items": plan.Items, "summary": summarizePlan(plan)}
	content, _ := json.MarshalIndent(data, "", "  ")
	return api.ToolResult{Content: string(content), Status: "success", Data: data}, nil
}
