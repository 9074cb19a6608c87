package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"auditx/internal"
	"auditx/internal/pipeline"
	"auditx/internal/storage"
)

func newAskCmd(c *cli) *cobra.Command {
	var auditID string
	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Ask the audit assistant a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.open()
			if err != nil {
				return err
			}
			var audit *internal.NormalizedAudit
			if auditID != "" {
				a, err := env.DB.GetAudit(auditID)
				if err != nil {
					if errors.Is(err, storage.ErrNotFound) {
						return fmt.Errorf("audit %s not found", auditID)
					}
					return err
				}
				audit = &a
			}

			resp := env.RAG(cmd.Context()).Query(cmd.Context(), args[0], audit)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Content)
			if len(resp.Sources) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Sources:")
				for _, s := range resp.Sources {
					fmt.Fprintf(out, "  [%d] %s (%.2f)\n", s.SourceNumber, s.DocumentName, s.RelevanceScore)
				}
			}
			if resp.Error {
				return errors.New(resp.ErrorMessage)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&auditID, "audit", "", "scope the question to one audit")
	return cmd
}

func newUploadCmd(c *cli) *cobra.Command {
	var auditID string
	var index bool
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload evidence files to the blob store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.open()
			if err != nil {
				return err
			}
			files, err := pipeline.LoadEvidenceFiles(args)
			if err != nil {
				return err
			}
			uploader, err := env.Uploader(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			records, err := uploader.Upload(cmd.Context(), auditID, files, func(r internal.UploadRecord) {
				if r.Status == internal.UploadSuccess || r.Status == internal.UploadError {
					fmt.Fprintf(out, "%-40s %s %s\n", r.FileName, r.Status, r.Error)
				}
			})
			blobNames := map[string]string{}
			for _, r := range records {
				if serr := env.DB.UpsertUpload(r, nil); serr != nil {
					return serr
				}
				if r.Status == internal.UploadSuccess {
					blobNames[r.FileName] = r.BlobName
				}
			}
			if err != nil {
				return err
			}

			if index {
				sc := env.SearchClient()
				if sc == nil {
					return errors.New("search index is not configured")
				}
				docs := pipeline.EvidenceDocuments(auditID, files, blobNames)
				if err := sc.IndexDocuments(cmd.Context(), docs); err != nil {
					return err
				}
				fmt.Fprintf(out, "indexed %d documents\n", len(docs))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&auditID, "audit", "", "audit the evidence belongs to")
	cmd.Flags().BoolVar(&index, "index", false, "push extracted text to the search index")
	return cmd
}
