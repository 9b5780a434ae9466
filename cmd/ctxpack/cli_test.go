package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ctxpack/internal/assemble"
	"ctxpack/internal/config"
	"ctxpack/internal/pack"
	"ctxpack/internal/toolkit"
)

func newTestAssembler() *assemble.Assembler {
	return assemble.New(settings, toolkit.Noop{})
}

// resetAssembleState clears the package-level flag targets between tests.
func resetAssembleState() {
	inputsPath, outPath = "", ""
	dryRun = false
	tokenBudget, maxFiles, topK = -1, -1, -1
	neighborRadius = -1
	sectionCaps = nil
	enforceFlag, noEnforceFlag = false, false
	toolkitURL, repoSHA = "", ""
	logger = zap.NewNop()
	settings = config.DefaultSettings()
}

func writeInputs(t *testing.T, inputs map[string]any) string {
	t.Helper()
	data, err := json.Marshal(inputs)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "inputs.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestRunAssemble_DryRunWritesManifest(t *testing.T) {
	resetAssembleState()
	inputsPath = writeInputs(t, map[string]any{
		"changed_paths": []string{"file:///z.py"},
	})
	outPath = filepath.Join(t.TempDir(), "manifest.json")
	dryRun = true

	cmd := &cobra.Command{}
	var out strings.Builder
	cmd.SetOut(&out)

	err := runAssemble(cmd, nil)
	require.NoError(t, err)

	// pack_hash printed and matching the persisted manifest.
	require.Contains(t, out.String(), "pack_hash: ")
	line := strings.SplitN(out.String(), "\n", 2)[0]
	printedHash := strings.TrimPrefix(line, "pack_hash: ")
	assert.Len(t, printedHash, 64)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var manifest pack.Manifest
	require.NoError(t, json.Unmarshal(data, &manifest))
	assert.Equal(t, printedHash, manifest.Meta.PackHash)
	require.Len(t, manifest.Slices, 1)
	assert.Equal(t, "file:///z.py", manifest.Slices[0].URI)
}

func TestRunAssemble_BudgetErrorPropagates(t *testing.T) {
	resetAssembleState()
	inputsPath = writeInputs(t, map[string]any{
		"must_include": []map[string]any{
			{"uri": "file:///big.py", "start": 0, "end": 100},
		},
	})
	dryRun = true
	tokenBudget = 1
	neighborRadius = 0
	enforceFlag = true

	cmd := &cobra.Command{}
	cmd.SetOut(&strings.Builder{})

	err := runAssemble(cmd, nil)
	var budgetErr *pack.BudgetError
	require.ErrorAs(t, err, &budgetErr)
	assert.NotEmpty(t, budgetErr.Overflow)
}

func TestRunAssemble_MissingInputsFile(t *testing.T) {
	resetAssembleState()
	inputsPath = filepath.Join(t.TempDir(), "missing.json")
	dryRun = true

	err := runAssemble(&cobra.Command{}, nil)
	assert.Error(t, err)
}

func TestRunAssemble_PersistsThroughRuntime(t *testing.T) {
	resetAssembleState()
	inputsPath = writeInputs(t, map[string]any{
		"changed_paths": []string{"file:///z.py"},
	})
	artifactDBPath = filepath.Join(t.TempDir(), "artifacts.db")
	defer func() { artifactDBPath = ".ctxpack/artifacts.db" }()

	cmd := &cobra.Command{}
	var out strings.Builder
	cmd.SetOut(&out)

	err := runAssemble(cmd, nil)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "pack_hash: ")
	assert.FileExists(t, artifactDBPath)
}

func TestBuildOptions_SectionCapParsing(t *testing.T) {
	resetAssembleState()
	sectionCaps = []string{"2=1", "4=10"}
	asm := newTestAssembler()

	opts, err := buildOptions(asm)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{2: 1, 4: 10}, opts.SectionCaps)

	sectionCaps = []string{"bogus"}
	_, err = buildOptions(asm)
	assert.Error(t, err)
}

func TestBuildOptions_EnforceOverrides(t *testing.T) {
	resetAssembleState()
	settings.EnforceNonDroppable = true
	noEnforceFlag = true
	asm := newTestAssembler()

	opts, err := buildOptions(asm)
	require.NoError(t, err)
	assert.False(t, opts.EnforceNonDroppable)
}

func TestExitCode_BudgetErrorIsTwo(t *testing.T) {
	budgetErr := &pack.BudgetError{Overflow: []pack.OverflowItem{
		{URI: "file:///x.go", Start: 0, End: 40, Reason: pack.ReasonTokenBudget},
	}}

	assert.Equal(t, 2, exitCode(budgetErr))
	// errors.As must see through command-level wrapping.
	assert.Equal(t, 2, exitCode(fmt.Errorf("assemble: %w", budgetErr)))
	assert.Equal(t, 1, exitCode(errors.New("bad invocation")))

	var diag strings.Builder
	reportError(&diag, budgetErr)
	assert.Contains(t, diag.String(), "ERROR: ")
	assert.Contains(t, diag.String(), "file:///x.go - token_budget")
}
