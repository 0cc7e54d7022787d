package fixer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFile = `package main

func main() {
	value := compute()
	print(value)
}
`

func newTestFixer(t *testing.T) (*Fixer, string) {
	t.Helper()
	backupDir := filepath.Join(t.TempDir(), "backups")
	f := New(backupDir, nil)
	f.now = func() time.Time { return time.Date(2026, 8, 24, 13, 45, 2, 0, time.UTC) }
	return f, backupDir
}

func writeSample(t *testing.T) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(file, []byte(sampleFile), 0644))
	return file
}

func TestApply_ExactMatch(t *testing.T) {
	f, _ := newTestFixer(t)
	file := writeSample(t)

	backup, err := f.Apply(file, "value := compute()", "value := computeSafely()")
	require.NoError(t, err)
	require.NotEmpty(t, backup)

	got, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(got), "computeSafely()")
	assert.NotContains(t, string(got), "value := compute()")
}

func TestApply_BackupNaming(t *testing.T) {
	f, backupDir := newTestFixer(t)
	file := writeSample(t)

	backup, err := f.Apply(file, "print(value)", "log(value)")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(backupDir, "main_20260824_134502.go"), backup)

	original, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, sampleFile, string(original), "backup holds the pre-fix content")
}

func TestApply_WhitespaceTolerantMatch(t *testing.T) {
	f, _ := newTestFixer(t)
	file := writeSample(t)

	// The provider reformatted the snippet: different indentation, extra spaces.
	original := "value :=   compute()\n  print(value)"
	_, err := f.Apply(file, original, "\tsafePrint(compute())")
	require.NoError(t, err)

	got, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(got), "safePrint(compute())")
	assert.NotContains(t, string(got), "print(value)")
}

func TestApply_TargetMissing(t *testing.T) {
	f, _ := newTestFixer(t)
	file := writeSample(t)

	_, err := f.Apply(file, "no such code", "replacement")
	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, ErrKindTargetMissing, applyErr.Kind)

	got, _ := os.ReadFile(file)
	assert.Equal(t, sampleFile, string(got), "a failed match must not touch the file")
}

func TestApply_FileMissing(t *testing.T) {
	f, _ := newTestFixer(t)

	_, err := f.Apply(filepath.Join(t.TempDir(), "gone.go"), "a", "b")
	var applyErr *ApplyError
	require.True(t, errors.As(err, &applyErr))
	assert.Equal(t, ErrKindFileMissing, applyErr.Kind)
}

func TestRestore(t *testing.T) {
	f, _ := newTestFixer(t)
	file := writeSample(t)

	backup, err := f.Apply(file, "print(value)", "log(value)")
	require.NoError(t, err)

	require.NoError(t, f.Restore(backup, file))

	got, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, sampleFile, string(got))
}
