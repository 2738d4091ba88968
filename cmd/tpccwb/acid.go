package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/ruslano69/tpcc-workbench/pkg/acid"
	"github.com/ruslano69/tpcc-workbench/pkg/audit"
	"github.com/ruslano69/tpcc-workbench/pkg/report"
	"github.com/ruslano69/tpcc-workbench/pkg/resultlog"
)

// cmdACID - сьют эмпирических проверок ACID
func cmdACID(args []string) int {
	fs := flag.NewFlagSet("acid", flag.ContinueOnError)
	common := addCommonFlags(fs)
	xlsxPath := fs.String("xlsx", "", "write an XLSX report to this path (overrides config)")
	archiveDir := fs.String("archive", "", "write a compressed JSON archive into this directory (overrides config)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	ctx := context.Background()
	a, err := buildApp(ctx, common)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	started := time.Now()
	harness := acid.NewHarness(a.be, a.events)
	result, runErr := harness.Run(ctx)

	publishResult(ctx, a, started, result, runErr)

	if runErr != nil {
		return fail(runErr)
	}

	if *xlsxPath == "" {
		*xlsxPath = a.config.Report.XLSXPath
	}
	if *archiveDir == "" {
		*archiveDir = a.config.Report.ArchiveDir
	}
	artifacts := writeArtifacts(ctx, a, result, *xlsxPath, *archiveDir)

	if a.jsonOut {
		if err := printJSON(result); err != nil {
			return fail(err)
		}
	} else {
		printSuite(result, artifacts)
	}

	if !result.Passed() {
		return exitError
	}
	return exitOK
}

// writeArtifacts пишет настроенные файловые артефакты. Сбой записи
// артефакта не отменяет результат сьюта: он логируется и печатается.
func writeArtifacts(ctx context.Context, a *app, result *acid.SuiteResult, xlsxPath, archiveDir string) []string {
	var artifacts []string

	if xlsxPath != "" {
		entry := audit.NewEntry(audit.OpExport, audit.StatusSuccess).
			WithBackend(a.be.BackendType()).
			WithDetail("format", "xlsx").
			WithDetail("path", xlsxPath)
		if err := report.WriteXLSX(result, xlsxPath); err != nil {
			entry.WithError(err)
			fmt.Printf("warning: xlsx report not written: %v\n", err)
		} else {
			artifacts = append(artifacts, xlsxPath)
		}
		_ = a.events.Log(ctx, entry)
	}

	if archiveDir != "" {
		entry := audit.NewEntry(audit.OpExport, audit.StatusSuccess).
			WithBackend(a.be.BackendType()).
			WithDetail("format", "zstd")
		archive, err := report.WriteArchive(result, archiveDir, a.config.Report.ArchivePrefix)
		if err != nil {
			entry.WithError(err)
			fmt.Printf("warning: archive not written: %v\n", err)
		} else {
			entry.WithDetail("path", archive.ArchivePath).
				WithDetail("checksum", archive.Checksum)
			artifacts = append(artifacts, archive.ArchivePath, archive.ChecksumPath)
		}
		_ = a.events.Log(ctx, entry)
	}

	return artifacts
}

// publishResult публикует итог сессии в Redis, если result log включен.
// Публикация best-effort: недоступный Redis не роняет команду.
func publishResult(ctx context.Context, a *app, started time.Time, result *acid.SuiteResult, runErr error) {
	if !a.config.ResultLog.Enabled {
		return
	}

	publisher := resultlog.NewRedisPublisher(a.config.ResultLog)
	defer publisher.Close()

	session := fmt.Sprintf("%d", started.UnixMilli())
	execErr := runErr
	var details string
	if result != nil {
		session = fmt.Sprintf("%d", result.SessionID)
		details = fmt.Sprintf("%d/%d checks passed", result.Summary.Passed, result.Summary.Total)
		if execErr == nil && !result.Passed() {
			execErr = fmt.Errorf("%d of %d checks failed", result.Summary.Failed, result.Summary.Total)
		}
	}

	err := publisher.Publish(ctx, resultlog.SessionResult{
		SessionID:  session,
		Command:    "acid",
		Backend:    a.be.BackendType(),
		StartedAt:  started,
		FinishedAt: time.Now(),
		Details:    details,
	}, execErr)
	if err != nil {
		fmt.Printf("warning: result not published to redis: %v\n", err)
	}
}

// printSuite печатает результат сьюта в человекочитаемом виде
func printSuite(result *acid.SuiteResult, artifacts []string) {
	fmt.Printf("ACID conformance: %s, session %d\n", result.Provider, result.SessionID)
	for _, check := range result.Checks {
		fmt.Printf("  %-12s %-7s %5dms  %s\n",
			check.Name, string(check.Status), check.DurationMs, check.Description)
	}
	verdict := "PASSED"
	if !result.Passed() {
		verdict = "FAILED"
	}
	fmt.Printf("Result: %s, %d/%d checks in %dms (success rate %.0f%%)\n",
		verdict, result.Summary.Passed, result.Summary.Total,
		result.Summary.DurationMs, result.Summary.SuccessRate)
	for _, artifact := range artifacts {
		fmt.Printf("  artifact: %s\n", artifact)
	}
}
