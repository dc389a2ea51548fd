// Package contextstore implements the v2 Context Store: an append-only
// per-project event log plus a periodic snapshot, and the deterministic
// reducer that turns a replayed event sequence back into a ContextWindow.
package contextstore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"zagent/pkg/engine/api"
	"zagent/pkg/engine/store"
)

var (
	// ErrGap means event_seq is not contiguous for a project's log — an
	// integrity error per §6's event-log format description.
	ErrGap = errors.New("event log has a sequence gap")

	// ErrCrossSessionContamination means a session's turn sequence was
	// interrupted by another session's user_turn before its own
	// assistant_turn was appended, which would corrupt that session's
	// reconstructed ContextWindow if left unflagged.
	ErrCrossSessionContamination = errors.New("cross-session contamination detected in event log")
)

const (
	defaultMaxChars        = 32000
	defaultKeepRecentTurns = 20
)

// Store is the per-workspace handle onto contexts-v2/<project_id_hex>/.
type Store struct {
	baseDir string
	mu      sync.Mutex
}

// New creates a Store rooted at workspaceRoot/contexts-v2.
func New(workspaceRoot string) (*Store, error) {
	baseDir := filepath.Join(workspaceRoot, "contexts-v2")
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create contexts-v2 directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) projectDir(projectID uint64) string {
	return filepath.Join(s.baseDir, ProjectDirName(projectID))
}

func (s *Store) metaPath(projectID uint64) string {
	return filepath.Join(s.projectDir(projectID), "meta.json")
}
func (s *Store) eventsPath(projectID uint64) string {
	return filepath.Join(s.projectDir(projectID), "events.ndjson")
}
func (s *Store) snapshotPath(projectID uint64) string {
	return filepath.Join(s.projectDir(projectID), "snapshot.json")
}

// atomicWriteJSON marshals v and writes it to path via
// store.WriteFileAtomic, the same temp-file-plus-rename helper
// store.FileSessionStore and store.FilePlanStore use for their own
// on-disk writes.
func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return store.WriteFileAtomic(path, data, 0644)
}

// EnsureProject creates the project's directory and meta.json (if absent)
// for the given root, returning the resolved project id.
func (s *Store) EnsureProject(projectRoot string) (uint64, error) {
	id, err := ProjectID(projectRoot)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.projectDir(id), 0755); err != nil {
		return 0, fmt.Errorf("create project directory: %w", err)
	}

	metaPath := s.metaPath(id)
	if _, err := os.Stat(metaPath); os.IsNotExist(err) {
		meta := api.ProjectMeta{
			SchemaVersion: 2,
			ProjectID:     id,
			ProjectRoot:   projectRoot,
			CreatedAt:     time.Now(),
			IntegrityMode: "strict",
		}
		if err := atomicWriteJSON(metaPath, meta); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// LoadMeta reads a project's meta.json.
func (s *Store) LoadMeta(projectID uint64) (api.ProjectMeta, error) {
	data, err := os.ReadFile(s.metaPath(projectID))
	if err != nil {
		return api.ProjectMeta{}, err
	}
	var meta api.ProjectMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return api.ProjectMeta{}, fmt.Errorf("unmarshal meta: %w", err)
	}
	return meta, nil
}

// SaveMeta atomically writes a project's meta.json.
func (s *Store) SaveMeta(projectID uint64, meta api.ProjectMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return atomicWriteJSON(s.metaPath(projectID), meta)
}

// nextSeq returns the next event_seq for a project by reading the last
// line of its event log. This keeps sequencing monotonic and contiguous
// project-wide, across every session that writes into it.
func (s *Store) nextSeq(projectID uint64) (uint64, error) {
	events, err := s.readAllLocked(projectID)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 1, nil
	}
	return events[len(events)-1].EventSeq + 1, nil
}

// AppendEvent appends one EventRecord to a project's log, assigning the
// next sequence number itself (callers must not set EventSeq).
func (s *Store) AppendEvent(ctx context.Context, projectID uint64, rec api.EventRecord) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.nextSeq(projectID)
	if err != nil {
		return err
	}
	rec.EventSeq = seq

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event record: %w", err)
	}

	f, err := os.OpenFile(s.eventsPath(projectID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// readAllLocked reads every EventRecord for a project. Caller must hold s.mu.
func (s *Store) readAllLocked(projectID uint64) ([]api.EventRecord, error) {
	f, err := os.Open(s.eventsPath(projectID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	var events []api.EventRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec api.EventRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal event record: %w", err)
		}
		events = append(events, rec)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("scan events file: %w", err)
	}
	return events, nil
}

// ReadAll returns every EventRecord for a project, verifying sequence
// contiguity as it goes.
func (s *Store) ReadAll(projectID uint64) ([]api.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.readAllLocked(projectID)
	if err != nil {
		return nil, err
	}
	if err := checkGaps(events); err != nil {
		return events, err
	}
	return events, nil
}

func checkGaps(events []api.EventRecord) error {
	for i := 1; i < len(events); i++ {
		if events[i].EventSeq != events[i-1].EventSeq+1 {
			return fmt.Errorf("%w: seq %d follows seq %d", ErrGap, events[i].EventSeq, events[i-1].EventSeq)
		}
	}
	return nil
}

// Reduce replays a project's event log for a single session, deterministically
// rebuilding its ContextWindow. Applying the same events twice always
// produces a byte-identical window (the loop only ever appends turns and
// never mutates one after the fact), and replaying a prefix then the full
// log gives the same result as replaying the full log directly.
func Reduce(events []api.EventRecord, sessionID string, title, projectPath string) (api.ContextWindow, error) {
	window := api.ContextWindow{
		MaxChars:        defaultMaxChars,
		KeepRecentTurns: defaultKeepRecentTurns,
		Title:           title,
		ProjectPath:     projectPath,
	}

	var sessionEvents []api.EventRecord
	for _, e := range events {
		if e.SessionID == sessionID {
			sessionEvents = append(sessionEvents, e)
		}
	}
	sort.SliceStable(sessionEvents, func(i, j int) bool { return sessionEvents[i].EventSeq < sessionEvents[j].EventSeq })

	awaitingAssistant := false
	for _, e := range sessionEvents {
		switch e.Kind {
		case api.KindUserTurn:
			if awaitingAssistant {
				return window, fmt.Errorf("%w: session %s saw a second user_turn before its assistant_turn", ErrCrossSessionContamination, sessionID)
			}
			turn, err := decodeTurn(e)
			if err != nil {
				return window, err
			}
			window.Turns = append(window.Turns, turn)
			awaitingAssistant = true

		case api.KindAssistantTurn:
			turn, err := decodeTurn(e)
			if err != nil {
				return window, err
			}
			window.Turns = append(window.Turns, turn)
			awaitingAssistant = false

		case api.KindErrorEvent:
			// An error_event may legitimately close out a turn without an
			// assistant_turn append (the loop aborted before committing a
			// response); stop waiting for one.
			awaitingAssistant = false

		default:
			// tool_event, status_event, decision_event: informational,
			// not replayed into the Turn sequence itself.
		}
	}

	return window, nil
}

func decodeTurn(e api.EventRecord) (api.Turn, error) {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return api.Turn{}, fmt.Errorf("re-marshal event payload: %w", err)
	}
	var turn api.Turn
	if err := json.Unmarshal(raw, &turn); err != nil {
		return api.Turn{}, fmt.Errorf("decode turn from event payload: %w", err)
	}
	return turn, nil
}

// LoadSnapshot reads a project's snapshot.json, returning the zero value
// if none has ever been written.
func (s *Store) LoadSnapshot(projectID uint64) (api.Snapshot, error) {
	data, err := os.ReadFile(s.snapshotPath(projectID))
	if os.IsNotExist(err) {
		return api.Snapshot{}, nil
	}
	if err != nil {
		return api.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap api.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return api.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Compact rebuilds a session's ContextWindow from the full event log,
// trims it to keep_recent_turns full turns (older turns are summarized
// into DurableFacts rather than dropped outright), and writes the result
// as the project's snapshot atomically.
func (s *Store) Compact(projectID uint64, sessionID, title, projectPath string) (api.Snapshot, error) {
	events, err := s.ReadAll(projectID)
	if err != nil && !errors.Is(err, ErrGap) {
		return api.Snapshot{}, err
	}

	window, rerr := Reduce(events, sessionID, title, projectPath)
	if rerr != nil {
		return api.Snapshot{}, rerr
	}

	var lastSeq uint64
	if len(events) > 0 {
		lastSeq = events[len(events)-1].EventSeq
	}

	snap := api.Snapshot{
		LastAppliedEventSeq: lastSeq,
		Title:               title,
		ProjectPath:         projectPath,
	}

	if len(window.Turns) > window.KeepRecentTurns {
		cut := len(window.Turns) - window.KeepRecentTurns
		for _, t := range window.Turns[:cut] {
			if t.Role == "user" {
				snap.DurableFacts = append(snap.DurableFacts, summarizeTurn(t))
			}
		}
		window.Turns = window.Turns[cut:]
	}
	snap.WorkingWindow = window

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := atomicWriteJSON(s.snapshotPath(projectID), snap); err != nil {
		return api.Snapshot{}, err
	}

	if meta, merr := s.loadMetaLocked(projectID); merr == nil {
		meta.LastCompactedAt = time.Now()
		if werr := atomicWriteJSON(s.metaPath(projectID), meta); werr != nil {
			return snap, werr
		}
	}

	return snap, nil
}

func (s *Store) loadMetaLocked(projectID uint64) (api.ProjectMeta, error) {
	data, err := os.ReadFile(s.metaPath(projectID))
	if err != nil {
		return api.ProjectMeta{}, err
	}
	var meta api.ProjectMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return api.ProjectMeta{}, err
	}
	return meta, nil
}

func summarizeTurn(t api.Turn) string {
	const maxLen = 160
	content := t.Content
	if len(content) > maxLen {
		content = content[:maxLen] + "…"
	}
	return content
}
