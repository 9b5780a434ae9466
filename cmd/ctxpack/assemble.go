package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ctxpack/internal/assemble"
	"ctxpack/internal/pack"
	"ctxpack/internal/runtime"
	"ctxpack/internal/store"
	"ctxpack/internal/toolkit"
)

var (
	inputsPath     string
	outPath        string
	dryRun         bool
	tokenBudget    int
	maxFiles       int
	neighborRadius int64
	topK           int
	sectionCaps    []string
	enforceFlag    bool
	noEnforceFlag  bool
	artifactDBPath string
	toolkitURL     string
	repoSHA        string
)

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Assemble a context pack manifest from inputs JSON",
	RunE:  runAssemble,
}

func init() {
	assembleCmd.Flags().StringVar(&inputsPath, "inputs", "", "path to AssembleInputs JSON (required)")
	assembleCmd.Flags().StringVar(&outPath, "out", "", "path to write the manifest JSON")
	assembleCmd.Flags().BoolVar(&dryRun, "dry-run", false, "skip artifact persistence and lifecycle events")
	assembleCmd.Flags().IntVar(&tokenBudget, "token-budget", -1, "override token budget")
	assembleCmd.Flags().IntVar(&maxFiles, "max-files", -1, "override max files")
	assembleCmd.Flags().Int64Var(&neighborRadius, "neighbor-radius", -1, "override neighbor radius")
	assembleCmd.Flags().IntVar(&topK, "top-k", -1, "override semantic search fan-out")
	assembleCmd.Flags().StringArrayVar(&sectionCaps, "section-cap", nil, "override a section cap as SECTION=LIMIT (repeatable)")
	assembleCmd.Flags().BoolVar(&enforceFlag, "enforce-non-droppable", false, "fail when a must-include span cannot be admitted")
	assembleCmd.Flags().BoolVar(&noEnforceFlag, "no-enforce-non-droppable", false, "disable non-droppable enforcement")
	assembleCmd.Flags().StringVar(&artifactDBPath, "artifact-db", ".ctxpack/artifacts.db", "SQLite artifact store path")
	assembleCmd.Flags().StringVar(&toolkitURL, "toolkit-url", "", "base URL of a remote discovery toolkit")
	assembleCmd.Flags().StringVar(&repoSHA, "repo-sha", "", "repository revision forwarded to the remote toolkit")
	_ = assembleCmd.MarkFlagRequired("inputs")
}

// buildKit selects the discovery toolkit: remote when a base URL is given,
// otherwise the no-capability kit (literal seeds only).
func buildKit() toolkit.ToolKit {
	if toolkitURL == "" {
		return toolkit.Noop{}
	}
	caps := map[toolkit.Capability]bool{
		toolkit.CapSemanticSearch: true,
		toolkit.CapSymbols:        true,
		toolkit.CapNeighbors:      true,
		toolkit.CapPatterns:       true,
	}
	return toolkit.NewHTTPKit(toolkitURL, repoSHA, caps, nil, settings,
		toolkit.WithLogger(logger),
		toolkit.WithTraceID(uuid.NewString()))
}

func loadInputs(path string) (pack.AssembleInputs, error) {
	var inputs pack.AssembleInputs
	data, err := os.ReadFile(path)
	if err != nil {
		return inputs, fmt.Errorf("inputs file: %w", err)
	}
	if err := json.Unmarshal(data, &inputs); err != nil {
		return inputs, fmt.Errorf("parse inputs: %w", err)
	}
	return inputs, nil
}

// buildOptions folds settings defaults with command-line overrides.
func buildOptions(asm *assemble.Assembler) (pack.AssembleOptions, error) {
	opts := asm.Options()
	if tokenBudget >= 0 {
		v := tokenBudget
		opts.TokenBudget = &v
	}
	if maxFiles >= 0 {
		v := maxFiles
		opts.MaxFiles = &v
	}
	if neighborRadius >= 0 {
		opts.NeighborRadius = neighborRadius
	}
	if topK >= 0 {
		opts.TopK = topK
	}
	if len(sectionCaps) > 0 {
		caps := map[int]int{}
		for k, v := range opts.SectionCaps {
			caps[k] = v
		}
		for _, item := range sectionCaps {
			sec, limit, ok := strings.Cut(item, "=")
			if !ok {
				return opts, fmt.Errorf("invalid --section-cap value: %q", item)
			}
			si, err1 := strconv.Atoi(sec)
			li, err2 := strconv.Atoi(limit)
			if err1 != nil || err2 != nil {
				return opts, fmt.Errorf("invalid --section-cap value: %q", item)
			}
			caps[si] = li
		}
		opts.SectionCaps = caps
	}
	if enforceFlag {
		opts.EnforceNonDroppable = true
	}
	if noEnforceFlag {
		opts.EnforceNonDroppable = false
	}
	return opts, nil
}

func runAssemble(cmd *cobra.Command, args []string) error {
	inputs, err := loadInputs(inputsPath)
	if err != nil {
		return err
	}

	asm := assemble.New(settings, buildKit(), assemble.WithLogger(logger))
	opts, err := buildOptions(asm)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	meta := assemble.Meta{CodeVersion: version}

	var (
		manifest pack.Manifest
		hash     string
		report   *pack.AssembleReport
	)
	if dryRun {
		manifest, hash, report, err = asm.Assemble(ctx, inputs, opts, meta)
	} else {
		artifacts, storeErr := store.NewSQLiteStore(artifactDBPath)
		if storeErr != nil {
			return storeErr
		}
		defer artifacts.Close()
		runner := runtime.NewRunner(asm, settings,
			runtime.WithStore(artifacts),
			runtime.WithLogger(logger))
		runID := uuid.NewString()
		logger.Debug("starting assembling phase", zap.String("run_id", runID))
		manifest, hash, report, err = runner.RunAssemblingPhase(ctx, runID, inputs, opts, meta)
	}
	if err != nil {
		// BudgetError surfaces to main for the exit-2 path; no partial
		// manifest is written.
		return err
	}

	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		payload, err := json.MarshalIndent(manifest, "", "  ")
		if err != nil {
			return fmt.Errorf("encode manifest: %w", err)
		}
		if err := os.WriteFile(outPath, payload, 0644); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pack_hash: %s\n", hash)
	fmt.Fprintf(out, "files_out: %d\n", report.FilesOut)
	fmt.Fprintf(out, "tokens_out: %d\n", report.TokensOut)
	return nil
}
