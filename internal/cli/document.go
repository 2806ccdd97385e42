package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewDocCmd создаёт группу команд для управления фискальными документами.
func NewDocCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Manage fiscal documents",
	}

	cmd.PersistentFlags().StringVar(&tenant, "tenant", "", "Tenant ID (required)")
	cmd.MarkPersistentFlagRequired("tenant")

	tenantFn := func() string { return tenant }

	cmd.AddCommand(
		newDocIssueCmd(clientFn, outputFn, tenantFn),
		newDocListCmd(clientFn, outputFn, tenantFn),
		newDocShowCmd(clientFn, outputFn, tenantFn),
		newDocRetryCmd(clientFn, outputFn, tenantFn),
		newDocCancelCmd(clientFn, outputFn, tenantFn),
		newDocVerifyCmd(clientFn, outputFn, tenantFn),
		newDocPDFCmd(clientFn, outputFn, tenantFn),
	)

	return cmd
}

func newDocIssueCmd(clientFn func() *Client, outputFn func() *Output, tenantFn func() string) *cobra.Command {
	var subjectID string

	cmd := &cobra.Command{
		Use:   "issue BILLABLE_ID",
		Short: "Request issuance of a document for a billable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			doc, err := client.IssueDocument(tenantFn(), IssueDocumentRequest{
				BillableReferenceID: args[0],
				SubjectID:           subjectID,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Issuance requested: %s", doc.ID))
			out.Document(doc)
			return nil
		},
	}

	cmd.Flags().StringVar(&subjectID, "subject", "", "Subject ID (required)")
	cmd.MarkFlagRequired("subject")

	return cmd
}

func newDocListCmd(clientFn func() *Client, outputFn func() *Output, tenantFn func() string) *cobra.Command {
	var status string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			docs, err := client.ListDocuments(tenantFn(), ListDocumentsOpts{
				Status: status,
				Limit:  limit,
				Offset: offset,
			})
			if err != nil {
				return err
			}

			out.Documents(docs)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, PROCESSING, ISSUED, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of results to skip")

	return cmd
}

func newDocShowCmd(clientFn func() *Client, outputFn func() *Output, tenantFn func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show document details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			doc, err := client.GetDocument(tenantFn(), args[0])
			if err != nil {
				return err
			}

			out.Document(doc)
			return nil
		},
	}
}

func newDocRetryCmd(clientFn func() *Client, outputFn func() *Output, tenantFn func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "retry ID",
		Short: "Retry a failed document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			doc, err := client.RetryDocument(tenantFn(), args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Retry requested: %s (%s)", doc.ID, doc.Status))
			out.Document(doc)
			return nil
		},
	}
}

func newDocCancelCmd(clientFn func() *Client, outputFn func() *Output, tenantFn func() string) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel an issued document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			doc, err := client.CancelDocument(tenantFn(), args[0], reason)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Document cancelled: %s", doc.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Cancellation reason (required)")
	cmd.MarkFlagRequired("reason")

	return cmd
}

func newDocVerifyCmd(clientFn func() *Client, outputFn func() *Output, tenantFn func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "verify ID",
		Short: "Check an issued document against the provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			res, err := client.VerifyDocument(tenantFn(), args[0])
			if err != nil {
				return err
			}

			out.Card([]Field{
				{"Number", res.DocumentNumber},
				{"Protocol", res.Protocol},
				{"Artifact", res.ArtifactURL},
				{"Matches", strconv.FormatBool(res.Matches)},
			}, res)
			return nil
		},
	}
}

func newDocPDFCmd(clientFn func() *Client, outputFn func() *Output, tenantFn func() string) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "pdf ID",
		Short: "Download the printable form of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := client.DownloadPDF(tenantFn(), args[0])
			if err != nil {
				return err
			}

			if path == "" {
				path = args[0] + ".pdf"
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}

			out.Success(fmt.Sprintf("Saved %s (%d bytes)", path, len(data)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "output", "o", "", "Output file (default ID.pdf)")

	return cmd
}
