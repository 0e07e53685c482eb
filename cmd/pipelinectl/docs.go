package main

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/genbatch/pipeline/internal/cliclient"
	"github.com/genbatch/pipeline/internal/domain"
)

func newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "docs", Short: "Manage documents attached to a run"}
	cmd.AddCommand(newDocsListCmd(), newDocsAddCmd(), newDocsRemoveCmd(), newDocsStatusCmd())
	return cmd
}

func newDocsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <run-id>",
		Short: "List documents attached to a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := client().ListDocuments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			headers := []string{"DOCUMENT_ID", "STATUS", "SORT_ORDER"}
			rows := make([][]string, 0, len(docs))
			for _, d := range docs {
				rows = append(rows, []string{d.DocumentID, string(d.Status), strconv.Itoa(d.SortOrder)})
			}
			return printRows(headers, rows, docs)
		},
	}
}

func newDocsAddCmd() *cobra.Command {
	var kind, displayName, repository, ref, path, filename, mimeType, inlineFile string
	cmd := &cobra.Command{
		Use:   "add <run-id>",
		Short: "Attach a document to a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var inline []byte
			if inlineFile != "" {
				raw, err := os.ReadFile(inlineFile)
				if err != nil {
					return usageErrorf("read inline content file: %s", err)
				}
				inline = raw
			}
			if kind == "" {
				kind = string(domain.SourceInline)
			}
			return client().AddDocument(cmd.Context(), args[0], cliclient.AddDocumentRequest{
				Kind:          domain.SourceKind(kind),
				DisplayName:   displayName,
				Repository:    repository,
				Ref:           ref,
				Path:          path,
				InlineContent: inline,
				Filename:      filename,
				MIMEType:      mimeType,
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "document kind: inline|stored")
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&repository, "repository", "", "source repository (stored kind)")
	cmd.Flags().StringVar(&ref, "ref", "", "source ref (stored kind)")
	cmd.Flags().StringVar(&path, "path", "", "source path (stored kind)")
	cmd.Flags().StringVar(&inlineFile, "inline-file", "", "local file whose bytes become inline_content")
	cmd.Flags().StringVar(&filename, "filename", "", "filename")
	cmd.Flags().StringVar(&mimeType, "mime-type", "", "MIME type")
	return cmd
}

func newDocsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <run-id> <document-id>",
		Short: "Detach a document from a run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().RemoveDocument(cmd.Context(), args[0], args[1])
		},
	}
}

func newDocsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id> <document-id>",
		Short: "Show one attached document's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := client().ListDocuments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, d := range docs {
				if d.DocumentID == args[1] {
					return printObject(d)
				}
			}
			return usageErrorf("document %s is not attached to run %s", args[1], args[0])
		},
	}
}
