package bulkload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Checkpointer persists how many source rows of a step are committed.
type Checkpointer interface {
	// Load returns 0 when no checkpoint exists.
	Load(key string) (int, error)
	Save(key string, rows int) error
	Clear(key string) error
}

func checkpointKey(runID, step string) string {
	if runID == "" {
		return step
	}
	return runID + "." + step
}

// ClearCheckpoints removes the checkpoints of every step run under runID.
func ClearCheckpoints(c Checkpointer, runID string, steps []Step) error {
	var errs []error
	for _, step := range steps {
		errs = append(errs, c.Clear(checkpointKey(runID, step.Name)))
	}
	return errors.Join(errs...)
}

// FileCheckpoints keeps one small text file per key under Dir.
type FileCheckpoints struct {
	Dir string
}

func (c FileCheckpoints) path(key string) string {
	return filepath.Join(c.Dir, key+".checkpoint")
}

func (c FileCheckpoints) Load(key string) (int, error) {
	data, err := os.ReadFile(c.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read checkpoint %s: %w", key, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("corrupt checkpoint %s: %q", c.path(key), string(data))
	}
	return n, nil
}

// Save writes through a temp file and rename so a crash never leaves a torn value.
func (c FileCheckpoints) Save(key string, rows int) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp := c.path(key) + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(rows)), 0o644); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", key, err)
	}
	if err := os.Rename(tmp, c.path(key)); err != nil {
		return fmt.Errorf("commit checkpoint %s: %w", key, err)
	}
	return nil
}

func (c FileCheckpoints) Clear(key string) error {
	err := os.Remove(c.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint %s: %w", key, err)
	}
	return nil
}
