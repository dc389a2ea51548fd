package cmd

import (
	"os"
	"path/filepath"
	"strconv"

	"zagent/pkg/engine/api"
	"zagent/pkg/engine/auth"
	"zagent/pkg/engine/contextstore"
	mw "zagent/pkg/engine/middleware"
	"zagent/pkg/engine/policy"
	"zagent/pkg/engine/provider"
	"zagent/pkg/engine/runtime"
	"zagent/pkg/engine/skill"
	"zagent/pkg/engine/store"
	"zagent/pkg/engine/systool"
	"zagent/pkg/engine/tools"
)

func resolveWorkspaceRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if realWD, err := filepath.EvalSymlinks(wd); err == nil {
		wd = realWD
	}
	// Use workspace/ subdirectory as the working directory for file operations
	workspaceDir := filepath.Join(wd, "workspace")
	// Create if it doesn't exist
	if err := os.MkdirAll(workspaceDir, 0755); err != nil {
		return "", err
	}
	return workspaceDir, nil
}

func defaultSkillRoots(workspaceRoot string) []string {
	var roots []string

	// workspaceRoot points to workspace/ subdirectory, go up one level for project root
	projectRoot := filepath.Dir(workspaceRoot)

	// Project skills (<project>/.sea/skills). Highest priority.
	roots = append(roots, filepath.Join(projectRoot, ".sea", "skills"))

	// Legacy project skills path (<project>/workspace/.sea/skills).
	roots = append(roots, filepath.Join(workspaceRoot, ".sea", "skills"))

	// Global skills (~/.sea/<agent>/skills).
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots, filepath.Join(home, ".sea", agentFlag, "skills"))
	}

	// Built-in skills shipped with the repo.
	roots = append(roots, filepath.Join(projectRoot, "skills"))

	// Codex skills (optional).
	if codexHome := os.Getenv("CODEX_HOME"); codexHome != "" {
		roots = append(roots, filepath.Join(codexHome, "skills"))
	} else if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots, filepath.Join(home, ".codex", "skills"))
	}

	return roots
}

// resolveActiveModel picks which provider to talk to and resolves its
// credential through the Auth Resolver. Provider selection order: an
// explicit AGENT_PROVIDER env var wins; otherwise the first provider whose
// credential env var is set, checked in this priority: github-copilot,
// openai, openai-compatible. Returns ok=false when no provider has a
// usable credential.
func resolveActiveModel(registry *provider.Registry) (api.ActiveModel, bool) {
	providerID := os.Getenv("AGENT_PROVIDER")
	if providerID == "" {
		switch {
		case os.Getenv("GITHUB_TOKEN") != "":
			providerID = "github-copilot"
		case os.Getenv("OPENAI_API_KEY") != "":
			providerID = "openai"
		case os.Getenv("LLM_API_KEY") != "":
			providerID = "openai-compatible"
		default:
			// No env hint either way; still give the Auth Resolver a chance
			// to find an OAuth-file or stored-file credential for the
			// default provider before giving up.
			providerID = "openai"
		}
	}

	spec, ok := registry.Get(providerID)
	if !ok {
		return api.ActiveModel{}, false
	}

	cred, err := auth.Resolve(spec)
	if err != nil || cred.Key == "" {
		return api.ActiveModel{}, false
	}

	model := os.Getenv("LLM_MODEL")
	if modelFlag != "" {
		model = modelFlag
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	return api.ActiveModel{
		ProviderID:      providerID,
		ModelID:         model,
		APIKey:          cred.Key,
		ReasoningEffort: os.Getenv("AGENT_REASONING_EFFORT"),
	}, true
}

// buildLLM resolves a runtime.LLM wired through the provider Dispatcher,
// falling back to the MockLLM when no provider has a usable key.
func buildLLM() runtime.LLM {
	registry := provider.NewRegistry()
	active, ok := resolveActiveModel(registry)
	if !ok {
		return &runtime.MockLLM{}
	}
	return provider.NewModelLLM(provider.NewDispatcher(registry), active)
}

func newAPIEngine(workspaceRoot string) (api.Engine, error) {
	sessionStore, err := store.NewFileSessionStore(workspaceRoot)
	if err != nil {
		return nil, err
	}
	planStore, err := store.NewFilePlanStore(workspaceRoot)
	if err != nil {
		return nil, err
	}
	eventLog, err := store.NewJSONLEventLog(workspaceRoot)
	if err != nil {
		return nil, err
	}

	skillIndex, err := skill.NewDirSkillIndex(defaultSkillRoots(workspaceRoot)...)
	if err != nil {
		return nil, err
	}

	ctxStore, err := contextstore.New(workspaceRoot)
	if err != nil {
		return nil, err
	}
	projectID, err := ctxStore.EnsureProject(workspaceRoot)
	if err != nil {
		return nil, err
	}

	reg := tools.NewRegistry()
	reg.MustRegister(&systool.ListSkillsTool{SkillIndex: skillIndex})
	reg.MustRegister(&systool.ReadSkillTool{SkillIndex: skillIndex})
	reg.MustRegister(&systool.ActivateSkillTool{SkillIndex: skillIndex})
	reg.MustRegister(&systool.ReadTodosTool{PlanStore: planStore})
	reg.MustRegister(&systool.WriteTodosTool{PlanStore: planStore})
	reg.MustRegister(&systool.UnderstandIntentTool{})

	if enableToolsFlag {
		for _, t := range tools.DefaultRegistry(workspaceRoot).All() {
			reg.MustRegister(t)
		}
		// run_skill_script needs skill index for path resolution.
		reg.MustRegister(tools.NewRunSkillScriptTool(workspaceRoot, skillIndex))
	}

	llm := buildLLM()

	// Read compression settings from environment
	autoCompressThreshold := 50 // Default
	if v := os.Getenv("AUTO_COMPRESS_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			autoCompressThreshold = n
		}
	}
	compressKeepTurns := 3 // Default
	if v := os.Getenv("COMPRESS_KEEP_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			compressKeepTurns = n
		}
	}

	// Filter historical tool messages (default: true for smaller context)
	filterHistoryTools := true
	if v := os.Getenv("FILTER_HISTORY_TOOLS"); v == "false" || v == "0" {
		filterHistoryTools = false
	}

	engine, err := runtime.NewEngine(runtime.EngineConfig{
		LLM:                   llm,
		Tools:                 reg,
		Policy:                policy.NewDefaultPolicy(),
		Middlewares:           []runtime.Middleware{mw.NewPersonaMiddleware(workspaceRoot, filepath.Dir(workspaceRoot), agentFlag), mw.NewBasePromptMiddleware(workspaceRoot), mw.NewSkillsMiddleware(skillIndex), mw.NewMemoryMiddleware(ctxStore, projectID), mw.NewPlanningMiddleware(planStore)},
		WorkspaceRoot:         workspaceRoot,
		SkillIndex:            skillIndex,
		SessionStore:          sessionStore,
		PlanStore:             planStore,
		EventLog:              eventLog,
		AutoCompressThreshold: autoCompressThreshold,
		CompressKeepTurns:     compressKeepTurns,
		FilterHistoryTools:    filterHistoryTools,
	})
	if err != nil {
		return nil, err
	}
	return engine, nil
}

// webServerDeps bundles everything the WebSocket Session Manager needs on
// top of the api.Engine it already gets from newAPIEngine: a handle onto
// the same on-disk session store (for list/rename), the project-scoped
// Context Store v2, the provider registry, and the resolved ActiveModel new
// client connections default to.
type webServerDeps struct {
	Engine       api.Engine
	SessionStore store.SessionStore
	ContextStore *contextstore.Store
	Registry     *provider.Registry
	ActiveModel  api.ActiveModel
}

func newWebServerDeps(workspaceRoot string) (*webServerDeps, error) {
	engine, err := newAPIEngine(workspaceRoot)
	if err != nil {
		return nil, err
	}

	sessionStore, err := store.NewFileSessionStore(workspaceRoot)
	if err != nil {
		return nil, err
	}

	ctxStore, err := contextstore.New(workspaceRoot)
	if err != nil {
		return nil, err
	}

	registry := provider.NewRegistry()
	activeModel, _ := resolveActiveModel(registry)

	return &webServerDeps{
		Engine:       engine,
		SessionStore: sessionStore,
		ContextStore: ctxStore,
		Registry:     registry,
		ActiveModel:  activeModel,
	}, nil
}
