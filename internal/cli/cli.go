// ============================================================================
// Custodian CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra-based command line interface driving a Custodian
// supervisor from a declarative spec document.
//
// Command Structure:
//   custodian                      # Root command
//   ├── run                        # Load a spec, run it to completion
//   │   ├── --config, -c          # Spec document path
//   │   ├── --dir, -d             # Run directory (default: cwd)
//   │   ├── --resume              # Resume via RunInterrupted
//   │   └── --metrics-port        # Serve Prometheus metrics on this port
//   └── status                     # Summarize custodian.json in --dir
//
// run Command:
//   1. Load the spec document (internal/specloader)
//   2. Build a supervisor.Custodian over --dir
//   3. Start the metrics HTTP server, if --metrics-port > 0
//   4. Run (or resume) to completion
//   5. Print the run log summary and exit non-zero on a terminal error
//
// status Command:
//   Reads custodian.json from --dir and prints a per-job summary: how
//   many corrections each job needed and whether its entry records a
//   termination ("terminated") or not ("ok"). The reason is not printed.
//
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/ChuLiYu/custodian/internal/metrics"
	"github.com/ChuLiYu/custodian/internal/specloader"
	"github.com/ChuLiYu/custodian/internal/supervisor"
	"github.com/ChuLiYu/custodian/pkg/custodian"
	"github.com/spf13/cobra"
)

var log = slog.Default()

// BuildCLI assembles the root "custodian" command and its subcommands.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "custodian",
		Short:   "Custodian: a JIT job-supervision core for long-running external processes",
		Version: "1.0.0",
	}

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	var specPath string
	var dir string
	var resume bool
	var metricsPort int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run (or resume) a job sequence described by a spec document",
		RunE: func(cmd *cobra.Command, args []string) error {
			if specPath == "" {
				return fmt.Errorf("a spec document is required (use --config or -c)")
			}
			if dir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("resolving working directory: %w", err)
				}
				dir = wd
			}
			return runSpec(specPath, dir, resume, metricsPort)
		},
	}

	cmd.Flags().StringVarP(&specPath, "config", "c", "", "spec document path (YAML)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "run directory (default: current directory)")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume an interrupted run via RunInterrupted")
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "serve Prometheus metrics on this port (0 disables)")
	cmd.MarkFlagRequired("config")

	return cmd
}

func runSpec(specPath, dir string, resume bool, metricsPort int) error {
	spec, err := specloader.LoadFile(specPath)
	if err != nil {
		return fmt.Errorf("loading spec: %w", err)
	}

	var opts []supervisor.Option
	if metricsPort > 0 {
		collector := metrics.NewCollector()
		go func() {
			if err := metrics.StartServer(metricsPort); err != nil {
				log.Error("metrics server exited", "error", err)
			}
		}()
		opts = append(opts, supervisor.WithMetrics(collector))
	}

	c := supervisor.New(spec.CustodianParams, spec.Handlers, spec.Validators, nil, dir, opts...)

	ctx := context.Background()

	if resume {
		priorLog, err := readRunLog(dir)
		if err != nil {
			return fmt.Errorf("reading prior run log: %w", err)
		}
		attempted, err := c.RunInterrupted(ctx, spec.Jobs, priorLog)
		printSummary(dir, err)
		if err != nil {
			return err
		}
		log.Info("resumed run complete", "jobs_attempted", attempted)
		return nil
	}

	_, err = c.Run(ctx, spec.Jobs)
	printSummary(dir, err)
	return err
}

func printSummary(dir string, runErr error) {
	runLog, err := readRunLog(dir)
	if err != nil {
		log.Warn("could not read run log for summary", "error", err)
		return
	}
	fmt.Printf("custodian: %d job(s) recorded in %s\n", len(runLog), dir)
	for _, entry := range runLog {
		fmt.Printf("  %s: %d correction(s)\n", entry.Job, len(entry.Corrections))
	}
	if runErr != nil {
		fmt.Printf("custodian: run stopped: %v\n", runErr)
	}
}

func readRunLog(dir string) ([]custodian.RunLogEntry, error) {
	path := dir + "/custodian.json"
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var runLog []custodian.RunLogEntry
	if err := json.Unmarshal(data, &runLog); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return runLog, nil
}

func buildStatusCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize a run directory's custodian.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("resolving working directory: %w", err)
				}
				dir = wd
			}
			return showStatus(dir)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "run directory (default: current directory)")
	return cmd
}

func showStatus(dir string) error {
	runLog, err := readRunLog(dir)
	if err != nil {
		return fmt.Errorf("reading run log: %w", err)
	}
	if len(runLog) == 0 {
		fmt.Printf("custodian: no run log found in %s\n", dir)
		return nil
	}

	fmt.Printf("custodian status: %s\n", dir)
	totalCorrections := 0
	for _, entry := range runLog {
		totalCorrections += len(entry.Corrections)
		status := "ok"
		if !entry.Termination.Empty() {
			status = "terminated"
		}
		fmt.Printf("  %-20s corrections=%-3d status=%s\n", entry.Job, len(entry.Corrections), status)
	}
	fmt.Printf("total: %d job(s), %d correction(s)\n", len(runLog), totalCorrections)
	return nil
}
