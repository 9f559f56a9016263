package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"webflowwizard/engine/internal/browser"
	"webflowwizard/engine/pkg/auth"
)

func newTokenCmd() *cobra.Command {
	var client string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token signed with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			token, err := auth.NewJWT(cfg.JWT.Secret, cfg.JWT.ExpireTime, cfg.JWT.APIKeyHash).GenerateToken(client)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&client, "client", "cli", "Client name recorded in the token")
	return cmd
}

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <api-key>",
		Short: "Print the bcrypt hash to put in API_KEY_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashKey(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the device profiles accepted by CHROME_DEVICE and --device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Name", "Viewport", "Scale", "Mobile", "Touch"})
			for _, name := range browser.DeviceNames() {
				d, err := browser.LookupDevice(name)
				if err != nil {
					return err
				}
				table.Append([]string{
					d.Name,
					fmt.Sprintf("%dx%d", d.Width, d.Height),
					strconv.FormatFloat(d.DevicePixelRatio, 'f', -1, 64),
					strconv.FormatBool(d.Mobile),
					strconv.FormatBool(d.Touch),
				})
			}
			table.Render()
			return nil
		},
	}
}
