package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webflowwizard/engine/internal/config"
	"webflowwizard/engine/internal/executor"
	"webflowwizard/engine/internal/models"
	"webflowwizard/engine/internal/target/htmlpage"
)

const blankDocument = "<html><head></head><body></body></html>"

func newReplayCmd() *cobra.Command {
	var (
		offline         bool
		continueOnError bool
		device          string
	)
	cmd := &cobra.Command{
		Use:   "replay <workflow.json>",
		Short: "Replay a recorded workflow and print per-step results",
		Long: `replay runs every step of a workflow file against a fresh browser.

With --offline the pages are fetched over plain HTTP and replayed against
their static HTML, which checks selectors and form wiring without Chrome.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()
			if device != "" {
				cfg.Chrome.Device = device
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read workflow: %w", err)
			}
			wf, err := models.DecodeWorkflow(data)
			if err != nil {
				return fmt.Errorf("failed to parse workflow: %w", err)
			}

			opts := executorOptions(cfg)
			if cmd.Flags().Changed("continue-on-error") {
				opts.ContinueOnError = continueOnError
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			target, release, err := openReplayTarget(ctx, cfg, offline, opts, log)
			if err != nil {
				return err
			}
			defer release()

			fmt.Printf("→ Replaying %q (%d steps)\n", wf.Name, len(wf.Steps))
			hooks := executor.Hooks{
				OnResult: func(i int, res models.ExecutionResult) {
					mark := "✓"
					if !res.Success {
						mark = "✗"
					}
					fmt.Printf("  %s %d/%d %s\n", mark, i+1, len(wf.Steps), res.StepID)
				},
			}
			report, err := executor.NewWorkflowExecutor(target, opts, hooks, log).Run(ctx, wf.Steps)
			if err != nil {
				return err
			}

			renderReport(wf, report)
			if report.State != executor.StateCompleted || report.Passed() != len(report.Results) {
				return fmt.Errorf("replay %s: %d of %d steps passed", report.State, report.Passed(), len(wf.Steps))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Replay against fetched static HTML instead of Chrome")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "Keep going after a failed step")
	cmd.Flags().StringVar(&device, "device", "", "Device profile to emulate (see `webflow devices`)")
	return cmd
}

func openReplayTarget(ctx context.Context, cfg *config.Config, offline bool, opts executor.Options, log *zap.Logger) (executor.Target, func(), error) {
	if offline {
		page, err := htmlpage.New(blankDocument)
		if err != nil {
			return nil, nil, err
		}
		page.SetLoader(htmlpage.HTTPLoader(&http.Client{Timeout: opts.Timeout}))
		return page, func() {}, nil
	}
	pool := newPool(cfg, log)
	target, release, err := pool.OpenTarget(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s browser: %w", cfg.Chrome.Backend, err)
	}
	return target, func() {
		release()
		pool.CloseAll()
	}, nil
}

func renderReport(wf *models.Workflow, report executor.RunReport) {
	byID := make(map[string]models.Step, len(wf.Steps))
	for _, s := range wf.Steps {
		byID[s.ID] = s
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Type", "Target", "Result", "Attempts", "Message"})
	for i, res := range report.Results {
		step := byID[res.StepID]
		result := "passed"
		if !res.Success {
			result = "failed"
			if res.ErrorKind != "" {
				result += " (" + res.ErrorKind + ")"
			}
		}
		table.Append([]string{
			strconv.Itoa(i + 1),
			string(step.Type),
			truncate(describe(step), 48),
			result,
			strconv.Itoa(res.Attempts),
			truncate(res.Message, 60),
		})
	}
	fmt.Println()
	table.Render()
	fmt.Printf("%s in %s: %d/%d passed\n", report.State, report.Duration.Round(time.Millisecond), report.Passed(), len(report.Results))
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
