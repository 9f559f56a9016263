package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"webflowwizard/engine/internal/models"
	"webflowwizard/engine/internal/notify"
	"webflowwizard/engine/internal/recorder"
)

func newRecordCmd() *cobra.Command {
	var (
		output string
		name   string
		device string
	)
	cmd := &cobra.Command{
		Use:   "record <url>",
		Short: "Record interactions in a browser window until Ctrl-C or the tab closes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()
			if device != "" {
				cfg.Chrome.Device = device
			}

			recOpts, err := recorderOptions(cfg)
			if err != nil {
				return err
			}
			pool := newPool(cfg, log)
			defer pool.CloseAll()

			ended := make(chan struct{}, 1)
			printer := notify.Func(func(e notify.Event) {
				switch e.Type {
				case notify.StepCommitted:
					if step, ok := e.Payload.(models.Step); ok {
						fmt.Printf("  + %-10s %s\n", step.Type, describe(step))
					}
				case notify.RecordingStopped:
					select {
					case ended <- struct{}{}:
					default:
					}
				}
			})

			mgr := recorder.NewManager(pool.OpenSession, recOpts, printer, log)
			defer mgr.Shutdown()

			sessionID := uuid.NewString()
			fmt.Printf("→ Opening %s... ", args[0])
			if err := mgr.Start(cmd.Context(), sessionID, args[0]); err != nil {
				fmt.Println("failed")
				return err
			}
			fmt.Println("done")
			fmt.Println("→ Recording, press Ctrl-C to finish")

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(interrupt)

			var steps []models.Step
			select {
			case <-interrupt:
				steps, err = mgr.Stop(sessionID)
			case <-ended:
				_, steps, err = mgr.Status(sessionID)
			}
			if err != nil {
				return fmt.Errorf("failed to stop recording: %w", err)
			}

			now := time.Now()
			wf := &models.Workflow{
				Version:  models.WorkflowSchemaVersion,
				ID:       uuid.NewString(),
				Name:     name,
				Tags:     []string{},
				Steps:    steps,
				Created:  now,
				Modified: now,
			}
			if wf.Name == "" {
				wf.Name = args[0]
			}
			data, err := models.EncodeWorkflow(wf)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Printf("✓ Saved %d steps to %s\n", len(steps), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "workflow.json", "Output filename")
	cmd.Flags().StringVar(&name, "name", "", "Workflow name (default: the start url)")
	cmd.Flags().StringVar(&device, "device", "", "Device profile to emulate (see `webflow devices`)")
	return cmd
}

// describe renders the part of a step a human recognizes it by.
func describe(s models.Step) string {
	switch c := s.Config.(type) {
	case models.NavigationConfig:
		return c.URL
	case models.ClickConfig:
		return c.Selector
	case models.InputConfig:
		return fmt.Sprintf("%s = %q", c.Selector, c.Value)
	case models.SubmitConfig:
		return c.Selector
	case models.WaitConfig:
		if c.Selector != "" {
			return c.Selector
		}
		return fmt.Sprintf("%dms", c.Duration)
	case models.CustomConfig:
		return "custom code"
	case models.TabSwitchConfig:
		return c.TabID
	case models.TabClosedConfig:
		return c.TabID
	}
	return ""
}
