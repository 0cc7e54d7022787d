// Package fixer applies a FixSuggestion to a file on disk. Every write is
// preceded by a timestamped backup so a rejected or regressed fix can be
// rolled back exactly.
package fixer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// backupTimestamp keeps backup names sortable and collision-free per second;
// a counter suffix would be overkill for one fix attempt per problem.
const backupTimestamp = "20060102_150405"

// ApplyErrorKind classifies why a fix could not be applied. The workflow
// returns the problem to its detected state on any of these; none are fatal
// to the session.
type ApplyErrorKind string

const (
	ErrKindFileMissing   ApplyErrorKind = "file_missing"
	ErrKindTargetMissing ApplyErrorKind = "target_missing"
	ErrKindBackupFailed  ApplyErrorKind = "backup_failed"
	ErrKindWriteFailed   ApplyErrorKind = "write_failed"
)

// ApplyError is the typed failure of one apply attempt.
type ApplyError struct {
	Kind ApplyErrorKind
	File string
	Err  error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("cannot apply fix to %s (%s): %v", e.File, e.Kind, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Fixer writes suggested fixes to disk with backup/restore support.
type Fixer struct {
	backupDir string
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a fixer writing backups under backupDir.
func New(backupDir string, logger *slog.Logger) *Fixer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fixer{backupDir: backupDir, now: time.Now, logger: logger}
}

// Apply replaces originalCode with proposedCode in the file, taking a backup
// first. It returns the backup path for a later Restore. Matching is exact
// first, then whitespace-tolerant, so suggestions reformatted by the
// provider still land.
func (f *Fixer) Apply(file, originalCode, proposedCode string) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", &ApplyError{Kind: ErrKindFileMissing, File: file, Err: err}
	}
	content := string(data)

	updated, ok := replaceSnippet(content, originalCode, proposedCode)
	if !ok {
		return "", &ApplyError{
			Kind: ErrKindTargetMissing,
			File: file,
			Err:  fmt.Errorf("original code not found in file"),
		}
	}

	backupPath, err := f.backup(file, data)
	if err != nil {
		return "", &ApplyError{Kind: ErrKindBackupFailed, File: file, Err: err}
	}

	perm := filePerm(file)
	if err := os.WriteFile(file, []byte(updated), perm); err != nil {
		return backupPath, &ApplyError{Kind: ErrKindWriteFailed, File: file, Err: err}
	}

	f.logger.Info("fix applied", "file", file, "backup", backupPath)
	return backupPath, nil
}

// Restore copies a backup back over the file it was taken from.
func (f *Fixer) Restore(backupPath, file string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("cannot read backup %s: %w", backupPath, err)
	}
	if err := os.WriteFile(file, data, filePerm(file)); err != nil {
		return fmt.Errorf("cannot restore %s from %s: %w", file, backupPath, err)
	}
	f.logger.Info("fix rolled back", "file", file, "backup", backupPath)
	return nil
}

// backup writes the pre-fix content to {stem}_{timestamp}{ext} under the
// backup directory.
func (f *Fixer) backup(file string, data []byte) (string, error) {
	if err := os.MkdirAll(f.backupDir, 0750); err != nil {
		return "", fmt.Errorf("cannot create backup dir: %w", err)
	}
	base := filepath.Base(file)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	name := fmt.Sprintf("%s_%s%s", stem, f.now().Format(backupTimestamp), ext)
	path := filepath.Join(f.backupDir, name)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("cannot write backup: %w", err)
	}
	return path, nil
}

// replaceSnippet swaps the first occurrence of original for proposed. When
// the exact text is absent it retries with both sides normalized line by
// line, mapping the match back onto the file's real lines.
func replaceSnippet(content, original, proposed string) (string, bool) {
	if original == "" {
		return content, false
	}
	if idx := strings.Index(content, original); idx >= 0 {
		return content[:idx] + proposed + content[idx+len(original):], true
	}

	wantLines := normalizedLines(original)
	if len(wantLines) == 0 {
		return content, false
	}
	fileLines := strings.Split(content, "\n")

	for start := 0; start+len(wantLines) <= len(fileLines); start++ {
		if matchesAt(fileLines, start, wantLines) {
			replaced := append([]string{}, fileLines[:start]...)
			replaced = append(replaced, strings.Split(proposed, "\n")...)
			replaced = append(replaced, fileLines[start+len(wantLines):]...)
			return strings.Join(replaced, "\n"), true
		}
	}
	return content, false
}

var innerSpace = regexp.MustCompile(`\s+`)

func normalizedLines(s string) []string {
	lines := strings.Split(s, "\n")
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = innerSpace.ReplaceAllString(strings.TrimSpace(line), " ")
	}
	// Leading/trailing blank lines never carry meaning in a snippet.
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func matchesAt(fileLines []string, start int, want []string) bool {
	for i, w := range want {
		got := innerSpace.ReplaceAllString(strings.TrimSpace(fileLines[start+i]), " ")
		if got != w {
			return false
		}
	}
	return true
}

func filePerm(file string) os.FileMode {
	if info, err := os.Stat(file); err == nil {
		return info.Mode().Perm()
	}
	return 0600
}
