package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"auditx/internal/pipeline"
)

func newIntakeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intake",
		Short: "Evidence intake from the configured mailbox",
	}
	cmd.AddCommand(newIntakeFetchCmd(c), newIntakeProcessCmd(c))
	return cmd
}

func newIntakeFetchCmd(c *cli) *cobra.Command {
	var label string
	var maxMessages int
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch new messages and store them for processing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.open()
			if err != nil {
				return err
			}
			fs, err := env.FetchService(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("label") {
				label = env.Config.IntakeLabel
			}
			if !cmd.Flags().Changed("max") {
				maxMessages = env.Config.IntakeFetchMax
			}
			res, err := fs.FetchAndStore(cmd.Context(), label, maxMessages)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fetched=%d stored=%d new=%d tagged=%d pending=%d\n", res.Fetched, res.Stored, res.New, res.Tagged, len(res.Pending))
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "mailbox label or folder")
	cmd.Flags().IntVar(&maxMessages, "max", 0, "maximum messages to fetch")
	return cmd
}

func newIntakeProcessCmd(c *cli) *cobra.Command {
	var messageID, provider string
	var batch int
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Match stored messages to audits and upload their evidence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.open()
			if err != nil {
				return err
			}
			if provider == "" {
				provider = env.Config.IntakeProvider
			}
			provider = strings.ToLower(strings.TrimSpace(provider))
			svc := env.Intake(cmd.Context())

			var results []pipeline.IntakeResult
			if messageID != "" {
				r, err := svc.ProcessByProviderMessageID(cmd.Context(), provider, messageID)
				if err != nil {
					return err
				}
				results = append(results, r)
			} else {
				if batch <= 0 {
					batch = env.Config.IntakeProcessBatch
				}
				results, err = svc.ProcessPending(cmd.Context(), batch, provider)
				if err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringVar(&messageID, "message-id", "", "process a single provider message")
	cmd.Flags().StringVar(&provider, "provider", "", "intake provider (defaults to INTAKE_PROVIDER)")
	cmd.Flags().IntVar(&batch, "batch", 0, "pending messages per run")
	return cmd
}
