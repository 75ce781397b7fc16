// Package patch applies batches of whole-file replacements to a workspace.
//
// A batch is validated in full, staged next to the workspace, and then
// committed by rename in input order. If any commit step fails, every patch
// already committed is rolled back, so a batch either lands completely or
// leaves the tree as it was.
package patch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alantheprice/sitebuilder/pkg/workspace"
	"go.uber.org/zap"
)

// FilePatch replaces the full content of Path.
type FilePatch struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Action classifies what a committed patch did to its target.
type Action string

const (
	ActionCreated  Action = "created"
	ActionModified Action = "modified"
)

// Change summarises one committed patch.
type Change struct {
	Path       string `json:"path"`
	Action     Action `json:"action"`
	Insertions int    `json:"insertions"` // lines
	Deletions  int    `json:"deletions"`  // lines
}

// Report lists the changes of a committed batch in input order.
type Report struct {
	Changes []Change `json:"changes"`
}

// Summary renders one line per change.
func (r *Report) Summary() string {
	var b strings.Builder
	for _, c := range r.Changes {
		fmt.Fprintf(&b, "%s %s (+%d -%d)\n", c.Action, c.Path, c.Insertions, c.Deletions)
	}
	return b.String()
}

// ErrRejected marks a batch refused during validation; nothing was written.
var ErrRejected = errors.New("patch batch rejected")

// ValidationError names the first patch that failed validation.
type ValidationError struct {
	Index int
	Path  string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("patch %d (%s): %v", e.Index, e.Path, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrRejected, e.Err}
}

// ApplyError reports an I/O failure while staging or committing patch Index.
// Err is a *workspace.IOError.
type ApplyError struct {
	Index      int
	Path       string
	RolledBack bool
	Err        error
}

func (e *ApplyError) Error() string {
	msg := fmt.Sprintf("patch %d (%s): %v", e.Index, e.Path, e.Err)
	if e.RolledBack {
		msg += " (earlier patches rolled back)"
	}
	return msg
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// Applier writes patch batches. The zero value is not usable; use NewApplier.
type Applier struct {
	logger *zap.Logger
	locker *workspace.Locker

	rename func(oldpath, newpath string) error
}

// NewApplier creates an Applier. locker may be shared with other writers of
// the same roots; nil creates a private one.
func NewApplier(logger *zap.Logger, locker *workspace.Locker) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = workspace.NewLocker()
	}
	return &Applier{logger: logger, locker: locker, rename: os.Rename}
}

type target struct {
	rel  string
	full string
}

// undo records how to reverse one committed patch.
type undo struct {
	full   string
	backup string // empty when the target did not exist before
}

// Apply validates, stages and commits patches under root. An empty batch is
// a no-op.
func (a *Applier) Apply(ctx context.Context, root string, patches []FilePatch) (*Report, error) {
	if len(patches) == 0 {
		return &Report{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	targets, err := validate(root, patches)
	if err != nil {
		return nil, err
	}

	unlock := a.locker.Lock(root)
	defer unlock()

	// Staged files sit in the state directory, which the manifest skips.
	stateDir := filepath.Join(root, workspace.StateDir)
	stateDirs, err := mkdirAllTracked(stateDir)
	defer removeEmptyDirs(stateDirs)
	var stageDir string
	if err == nil {
		stageDir, err = os.MkdirTemp(stateDir, "stage-")
	}
	if err != nil {
		return nil, &ApplyError{Index: 0, Path: patches[0].Path, Err: &workspace.IOError{Op: "stage", Path: root, Err: err}}
	}
	defer func() {
		if err := os.RemoveAll(stageDir); err != nil {
			a.logger.Warn("failed to remove staging directory", zap.String("dir", stageDir), zap.Error(err))
		}
	}()

	staged := make([]string, len(patches))
	for i, p := range patches {
		staged[i] = filepath.Join(stageDir, strconv.Itoa(i)+".new")
		if err := os.WriteFile(staged[i], []byte(p.Content), 0644); err != nil {
			return nil, &ApplyError{Index: i, Path: targets[i].rel, Err: &workspace.IOError{Op: "stage", Path: targets[i].rel, Err: err}}
		}
	}

	// Nothing in the workspace has been touched until this point.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{Changes: make([]Change, 0, len(patches))}
	var undos []undo
	var createdDirs []string

	for i, p := range patches {
		t := targets[i]
		change, u, dirs, err := a.commit(t, staged[i], filepath.Join(stageDir, strconv.Itoa(i)+".bak"), p.Content)
		createdDirs = append(createdDirs, dirs...)
		if u != nil {
			undos = append(undos, *u)
		}
		if err != nil {
			a.rollback(undos, createdDirs)
			a.logger.Error("patch commit failed, batch rolled back",
				zap.Int("index", i), zap.String("path", t.rel), zap.Error(err))
			return nil, &ApplyError{Index: i, Path: t.rel, RolledBack: true, Err: err}
		}
		report.Changes = append(report.Changes, change)
		a.logger.Debug("patch committed",
			zap.String("path", change.Path),
			zap.String("action", string(change.Action)),
			zap.Int("insertions", change.Insertions),
			zap.Int("deletions", change.Deletions))
	}

	return report, nil
}

func validate(root string, patches []FilePatch) ([]target, error) {
	targets := make([]target, len(patches))
	for i, p := range patches {
		full, err := workspace.Resolve(root, p.Path, true)
		if err != nil {
			return nil, &ValidationError{Index: i, Path: p.Path, Err: err}
		}
		if info, err := os.Stat(full); err == nil && info.IsDir() {
			return nil, &ValidationError{Index: i, Path: p.Path, Err: errors.New("target is a directory")}
		}
		rel, err := workspace.Rel(root, full)
		if err != nil {
			return nil, &ValidationError{Index: i, Path: p.Path, Err: err}
		}
		targets[i] = target{rel: rel, full: full}
	}
	return targets, nil
}

// commit moves one staged file into place. The returned undo and dirs
// describe whatever was changed, even on error.
func (a *Applier) commit(t target, staged, backup, content string) (Change, *undo, []string, error) {
	change := Change{Path: t.rel, Action: ActionCreated}

	dirs, err := mkdirAllTracked(filepath.Dir(t.full))
	if err != nil {
		return change, nil, dirs, &workspace.IOError{Op: "mkdir", Path: t.rel, Err: err}
	}

	u := &undo{full: t.full}
	if info, err := os.Stat(t.full); err == nil {
		old, err := os.ReadFile(t.full)
		if err != nil {
			return change, nil, dirs, &workspace.IOError{Op: "read", Path: t.rel, Err: err}
		}
		change.Action = ActionModified
		change.Insertions, change.Deletions = lineDiffStats(string(old), content)
		_ = os.Chmod(staged, info.Mode().Perm())

		if err := a.rename(t.full, backup); err != nil {
			return change, nil, dirs, &workspace.IOError{Op: "backup", Path: t.rel, Err: err}
		}
		u.backup = backup
	} else if os.IsNotExist(err) {
		change.Insertions, change.Deletions = lineDiffStats("", content)
	} else {
		return change, nil, dirs, &workspace.IOError{Op: "stat", Path: t.rel, Err: err}
	}

	if err := a.rename(staged, t.full); err != nil {
		return change, u, dirs, &workspace.IOError{Op: "write", Path: t.rel, Err: err}
	}
	return change, u, dirs, nil
}

// rollback reverses committed patches newest first, then removes any
// directories the batch created.
func (a *Applier) rollback(undos []undo, createdDirs []string) {
	for i := len(undos) - 1; i >= 0; i-- {
		u := undos[i]
		var err error
		if u.backup != "" {
			err = os.Rename(u.backup, u.full)
		} else {
			err = os.Remove(u.full)
			if os.IsNotExist(err) {
				err = nil
			}
		}
		if err != nil {
			a.logger.Error("rollback step failed", zap.String("path", u.full), zap.Error(err))
		}
	}
	for i := len(createdDirs) - 1; i >= 0; i-- {
		if err := os.Remove(createdDirs[i]); err != nil && !os.IsNotExist(err) {
			a.logger.Warn("failed to remove directory during rollback", zap.String("dir", createdDirs[i]), zap.Error(err))
		}
	}
}

// mkdirAllTracked is os.MkdirAll that also returns the directories it
// created, outermost first.
func mkdirAllTracked(dir string) ([]string, error) {
	var missing []string
	for probe := dir; ; {
		if _, err := os.Stat(probe); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return nil, err
		}
		missing = append(missing, probe)
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}

	var created []string
	for i := len(missing) - 1; i >= 0; i-- {
		if err := os.Mkdir(missing[i], 0755); err != nil && !os.IsExist(err) {
			return created, err
		}
		created = append(created, missing[i])
	}
	return created, nil
}

// removeEmptyDirs removes dirs deepest first, leaving any that are in use.
func removeEmptyDirs(dirs []string) {
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i])
	}
}
