// Package file provides file-based persistence for targets, schedules, runs
// and attempts. One JSON document per entity under the root directory. It is
// meant for development and tests; the idempotency-key and cascade semantics
// match the PostgreSQL backend, serialized behind a single lock.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the
// file system.
type Persistence struct {
	root      string
	mu        sync.RWMutex
	targets   *TargetRepository
	schedules *ScheduleRepository
	runs      *RunRepository
	attempts  *AttemptRepository
}

// NewPersistence creates a file persistence layer rooted at the given
// directory. A file:// prefix is stripped.
func NewPersistence(root string, clk *clock.Clock) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.targets = &TargetRepository{store: p, clock: clk}
	p.schedules = &ScheduleRepository{store: p, clock: clk}
	p.runs = &RunRepository{store: p, clock: clk}
	p.attempts = &AttemptRepository{store: p, clock: clk}

	return p
}

// Targets returns the target repository.
func (p *Persistence) Targets() persistence.TargetRepository {
	return p.targets
}

// Schedules returns the schedule repository.
func (p *Persistence) Schedules() persistence.ScheduleRepository {
	return p.schedules
}

// Runs returns the run repository.
func (p *Persistence) Runs() persistence.RunRepository {
	return p.runs
}

// Attempts returns the attempt repository.
func (p *Persistence) Attempts() persistence.AttemptRepository {
	return p.attempts
}

// HealthCheck verifies the root directory is usable.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(p.root, 0o755); err != nil {
		return fmt.Errorf("persistence root unavailable: %w", err)
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to do for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) write(kind, id string, entity any) error {
	dir := filepath.Join(p.root, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	data, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	if err := os.WriteFile(filepath.Join(dir, id+".json"), data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	return nil
}

// read decodes one entity; reports found=false when the file does not exist.
func (p *Persistence) read(kind, id string, entity any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(p.root, kind, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s %s: %w", kind, id, err)
	}

	if err := json.Unmarshal(data, entity); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
	}

	return true, nil
}

func (p *Persistence) remove(kind, id string) (bool, error) {
	err := os.Remove(filepath.Join(p.root, kind, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to remove %s %s: %w", kind, id, err)
	}

	return true, nil
}

// ids lists the entity ids stored under a kind directory.
func (p *Persistence) ids(kind string) ([]string, error) {
	root := os.DirFS(filepath.Join(p.root, kind))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", kind, err)
	}

	ids := make([]string, 0, len(jsonFiles))
	for _, file := range jsonFiles {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}
