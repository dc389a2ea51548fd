package cmd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"zagent/cmd/ui"
	"zagent/pkg/engine/api"

	"github.com/spf13/cobra"
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run a coding-task scenario end to end and write a report",
	Run:   runEval,
}

var (
	evalTaskFlag   string
	evalBriefFlag  string
	evalOutDirFlag string
)

func init() {
	evalCmd.Flags().StringVar(&evalTaskFlag, "task", "default", "Task name under workspace/tasks/")
	evalCmd.Flags().StringVar(&evalBriefFlag, "brief", "", "Path to the task brief markdown (default: workspace/tasks/<task>/BRIEF.md)")
	evalCmd.Flags().StringVar(&evalOutDirFlag, "out", "workspace/eval", "Directory to write evaluation outputs")
	rootCmd.AddCommand(evalCmd)
}

// evalReport is the record written for a single scenario run: what was
// asked, what changed on disk, and what the event log says happened.
type evalReport struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Scenario  string    `json:"scenario"`
	SessionID string    `json:"session_id"`

	Task  string `json:"task"`
	Brief string `json:"brief"`

	Checks []evalCheck `json:"checks"`
	Files  []fileDiff  `json:"files,omitempty"`
	Events eventStats  `json:"events,omitempty"`
}

type evalCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

type fileDiff struct {
	Path      string `json:"path"`
	BeforeSHA string `json:"before_sha,omitempty"`
	AfterSHA  string `json:"after_sha,omitempty"`
	Changed   bool   `json:"changed"`
	Bytes     int    `json:"bytes,omitempty"`
}

type eventStats struct {
	ToolCalls     int `json:"tool_calls"`
	Approvals     int `json:"approvals"`
	PlanSnapshots int `json:"plan_snapshots"`
	Errors        int `json:"errors"`
	Deltas        int `json:"deltas"`
	Done          int `json:"done"`
}

// runEval drives one turn of the agent against a task brief living under
// workspace/tasks/<task>/ and reports which files in that directory changed.
// Unlike a fixed checklist, the target file set is discovered by walking the
// task directory before and after the turn, since a coding task's output
// files aren't known in advance the way a worldbuilding doc set would be.
func runEval(cmd *cobra.Command, args []string) {
	workspaceRoot, err := resolveWorkspaceRoot()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	eng, err := newAPIEngine(workspaceRoot)
	if err != nil {
		fmt.Printf("Error initializing engine: %v\n", err)
		return
	}

	taskDir := filepath.Join("workspace", "tasks", evalTaskFlag)
	brief := evalBriefFlag
	if brief == "" {
		brief = filepath.Join(taskDir, "BRIEF.md")
	}

	briefText, err := os.ReadFile(filepath.Join(workspaceRoot, brief))
	if err != nil {
		fmt.Printf("Error reading task brief %s: %v\n", brief, err)
		return
	}

	ctx := context.Background()
	sessionID, err := eng.StartSession(ctx, api.StartOptions{
		ApprovalMode: resolveApprovalMode(),
	})
	if err != nil {
		fmt.Printf("Error starting session: %v\n", err)
		return
	}

	report := evalReport{
		ID:        "eval-" + sessionID,
		StartedAt: time.Now(),
		Scenario:  "coding-task",
		SessionID: sessionID,
		Task:      evalTaskFlag,
		Brief:     brief,
	}

	before := snapshotDir(filepath.Join(workspaceRoot, taskDir))

	approver := ui.NewCLIApprover()
	approval := &approvalState{}

	prompt := fmt.Sprintf(
		"Task: %s\n\n%s\n\nWork inside %s. Read any existing files there first, make the requested change, and leave the task in a working state.\n",
		evalTaskFlag,
		strings.TrimSpace(string(briefText)),
		taskDir,
	)

	err = runTurnWithApprovals(ctx, eng, sessionID, prompt, approver, approval)
	report.EndedAt = time.Now()

	if err != nil {
		report.Checks = append(report.Checks, evalCheck{Name: "scenario_completed", Passed: false, Detail: err.Error()})
	} else {
		report.Checks = append(report.Checks, evalCheck{Name: "scenario_completed", Passed: true})
	}

	after := snapshotDir(filepath.Join(workspaceRoot, taskDir))
	report.Files = diffSnapshots(before, after)

	changed := 0
	for _, fd := range report.Files {
		if fd.Changed {
			changed++
		}
	}
	report.Checks = append(report.Checks, evalCheck{
		Name:   "files_changed",
		Passed: changed > 0,
		Detail: fmt.Sprintf("%d file(s) touched under %s", changed, taskDir),
	})

	report.Events = summarizeEvents(filepath.Join(workspaceRoot, "workspace", "events", sessionID+".jsonl"))

	if err := writeEvalReport(workspaceRoot, evalOutDirFlag, &report); err != nil {
		fmt.Printf("Failed to write report: %v\n", err)
		return
	}

	fmt.Printf("Eval complete. Session=%s Report=%s\n", report.SessionID, filepath.ToSlash(filepath.Join(evalOutDirFlag, report.ID+".json")))
}

type fileSnap struct {
	SHA   string
	Bytes int
}

// snapshotDir walks a directory and hashes every regular file under it,
// relative to workspaceRoot's parent so paths in the report stay comparable
// across the before/after pair even if the directory didn't exist yet.
func snapshotDir(dir string) map[string]fileSnap {
	out := make(map[string]fileSnap)
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d == nil || d.IsDir() {
			return nil
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil
		}
		rel, rerr := filepath.Rel(dir, path)
		if rerr != nil {
			rel = path
		}
		sum := sha256.Sum256(data)
		out[rel] = fileSnap{SHA: hex.EncodeToString(sum[:]), Bytes: len(data)}
		return nil
	})
	return out
}

func diffSnapshots(before, after map[string]fileSnap) []fileDiff {
	seen := make(map[string]bool, len(before)+len(after))
	var out []fileDiff

	for path := range before {
		seen[path] = true
	}
	for path := range after {
		seen[path] = true
	}

	for path := range seen {
		b, bok := before[path]
		a, aok := after[path]
		fd := fileDiff{Path: path}
		if bok {
			fd.BeforeSHA = b.SHA
		}
		if aok {
			fd.AfterSHA = a.SHA
			fd.Bytes = a.Bytes
		}
		fd.Changed = !bok || !aok || b.SHA != a.SHA
		out = append(out, fd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func writeEvalReport(workspaceRoot, outDir string, report *evalReport) error {
	if report == nil {
		return fmt.Errorf("report is nil")
	}
	abs := filepath.Join(workspaceRoot, outDir)
	if err := os.MkdirAll(abs, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(abs, report.ID+".json"), data, 0644)
}

func summarizeEvents(path string) eventStats {
	raw, err := os.ReadFile(path)
	if err != nil {
		return eventStats{}
	}
	lines := strings.Split(string(raw), "\n")
	var stats eventStats
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var e struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		switch e.Type {
		case string(api.EventDelta):
			stats.Deltas++
		case string(api.EventToolCall):
			stats.ToolCalls++
		case string(api.EventApproval):
			stats.Approvals++
		case string(api.EventPlan):
			stats.PlanSnapshots++
		case string(api.EventError):
			stats.Errors++
		case string(api.EventDone):
			stats.Done++
		}
	}
	return stats
}
