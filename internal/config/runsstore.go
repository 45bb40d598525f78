package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oxy-hq/oxy/internal/workflow"
)

// FileRunsStore is the reference file-system-backed workflow.RunsStore
// named explicitly in SPEC_FULL.md §1 ("this module ships one reference
// implementation of each narrow interface ... a file-system runs store").
// workflow.RunsStore's own doc comment ("RunsStore is consulted, never
// implemented, here") scopes that package to the abstract interface only
// — the concrete implementation belongs at the composition root, exactly
// where this one lives.
//
// Each run is one JSON file under <dir>/<workflowName>/runs/<id>.json. A
// run that failed additionally gets copied to
// <dir>/<workflowName>/last-failed.json, the pointer LastFailedRun reads.
type FileRunsStore struct {
	dir string
}

// NewFileRunsStore builds a FileRunsStore rooted at dir. dir is created
// lazily, on first SaveRun.
func NewFileRunsStore(dir string) *FileRunsStore {
	return &FileRunsStore{dir: dir}
}

func (s *FileRunsStore) runsDir(workflowName string) string {
	return filepath.Join(s.dir, workflowName, "runs")
}

func (s *FileRunsStore) lastFailedPath(workflowName string) string {
	return filepath.Join(s.dir, workflowName, "last-failed.json")
}

func (s *FileRunsStore) runPath(workflowName, id string) string {
	return filepath.Join(s.runsDir(workflowName), id+".json")
}

// SaveRun persists run under its workflow and ID, and additionally
// updates the last-failed pointer when run.FailedAt is set.
func (s *FileRunsStore) SaveRun(run workflow.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run has no ID")
	}
	if err := os.MkdirAll(s.runsDir(run.WorkflowName), 0o755); err != nil {
		return fmt.Errorf("creating runs directory: %w", err)
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}
	if err := os.WriteFile(s.runPath(run.WorkflowName, run.ID), data, 0o644); err != nil {
		return fmt.Errorf("writing run: %w", err)
	}

	if run.FailedAt != "" {
		if err := os.WriteFile(s.lastFailedPath(run.WorkflowName), data, 0o644); err != nil {
			return fmt.Errorf("writing last-failed pointer: %w", err)
		}
	}
	return nil
}

// LastFailedRun returns the most recently saved failed run for
// workflowName.
func (s *FileRunsStore) LastFailedRun(workflowName string) (workflow.Run, error) {
	return readRun(s.lastFailedPath(workflowName))
}

// LoadRun returns a specific persisted run by ID (replayID); runIndex is
// carried for round-tripping but the file-system store keys purely on
// run ID, since IDs are already unique per run.
func (s *FileRunsStore) LoadRun(workflowName, replayID string, runIndex int) (workflow.Run, error) {
	if replayID == "" {
		return workflow.Run{}, fmt.Errorf("replay requires a run ID")
	}
	return readRun(s.runPath(workflowName, replayID))
}

func readRun(path string) (workflow.Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return workflow.Run{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var run workflow.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return workflow.Run{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return run, nil
}
