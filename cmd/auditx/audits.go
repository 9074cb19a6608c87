package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"auditx/internal"
	"auditx/internal/docstore"
	"auditx/internal/pipeline"
)

func newSyncCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Pull audit documents from the document store and normalize them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.open()
			if err != nil {
				return err
			}
			result, err := env.SyncService().Sync(cmd.Context())
			if perr := printJSON(cmd.OutOrStdout(), result); perr != nil {
				return perr
			}
			if err != nil {
				return err
			}
			if result.State == docstore.SyncNoData && result.Warning != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", result.Warning)
			}
			return nil
		},
	}
}

func newStatusCmd(c *cli) *cobra.Command {
	var reviewer, note string
	cmd := &cobra.Command{
		Use:   "status <audit-id> <approved|rejected|pending_review>",
		Short: "Override the review status of an audit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.open()
			if err != nil {
				return err
			}
			updated, err := env.SyncService().OverrideStatus(args[0], internal.AuditStatus(args[1]), reviewer, note)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", updated.AuditID, updated.StatusOverride.Previous, updated.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&reviewer, "reviewer", os.Getenv("USER"), "reviewer name")
	cmd.Flags().StringVar(&note, "note", "", "review note")
	return cmd
}

func newShowCmd(c *cli) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "show [audit-id]",
		Short: "List stored audits, or print one audit as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.open()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				a, err := env.DB.GetAudit(args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), a)
			}
			audits, err := env.DB.ListAudits(status)
			if err != nil {
				return err
			}
			renderAudits(cmd.OutOrStdout(), audits)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "all", "filter by status")
	return cmd
}

func renderAudits(w io.Writer, audits []internal.NormalizedAudit) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Audit", "Name", "Status", "Score", "Findings", "Generated", "Due"})
	for _, a := range audits {
		table.Append([]string{
			a.AuditID,
			a.DisplayName,
			string(a.Status),
			strconv.FormatFloat(a.OverallScore, 'f', 1, 64),
			strconv.Itoa(len(a.Findings)),
			a.LastReviewed,
			a.DueDate,
		})
	}
	table.Render()
}

func newExportCmd(c *cli) *cobra.Command {
	var out, status string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored audits and findings to XLSX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.open()
			if err != nil {
				return err
			}
			audits, err := env.DB.ListAudits(status)
			if err != nil {
				return err
			}
			if len(audits) == 0 {
				return fmt.Errorf("no audits to export")
			}
			if out == "" {
				out = filepath.Join(env.Config.OutputDir, "audits_"+time.Now().UTC().Format("20060102")+".xlsx")
			}
			if err := pipeline.ExportAuditsToXLSX(audits, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d audits to %s\n", len(audits), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output xlsx path")
	cmd.Flags().StringVar(&status, "status", "all", "filter by status")
	return cmd
}

// newNormalizeCmd runs the pipeline over local JSON files without touching
// the store. Each file holds one document or an array of documents; "-"
// reads stdin.
func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <file.json|->...",
		Short: "Normalize raw audit documents from files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			normalizer := pipeline.NewNormalizer()
			out := []internal.NormalizedAudit{}
			for _, path := range args {
				docs, err := readDocuments(cmd.InOrStdin(), path)
				if err != nil {
					return err
				}
				for i, raw := range docs {
					rec, err := pipeline.DecodeDocument(raw)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "skip %s[%d]: %v\n", path, i, err)
						continue
					}
					a, err := normalizer.Normalize(rec)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "skip %s[%d]: %v\n", path, i, err)
						continue
					}
					out = append(out, a)
				}
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func readDocuments(stdin io.Reader, path string) ([]json.RawMessage, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if strings.HasPrefix(string(trimmed), "[") {
		var docs []json.RawMessage
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return docs, nil
	}
	return []json.RawMessage{trimmed}, nil
}
