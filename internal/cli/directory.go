package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewDirectoryCmd создаёт команды для справочника счетов и получателей.
func NewDirectoryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "directory",
		Short: "Manage billables and subjects",
	}

	cmd.PersistentFlags().StringVar(&tenant, "tenant", "", "Tenant ID (required)")
	cmd.MarkPersistentFlagRequired("tenant")

	cmd.AddCommand(
		newBillablePutCmd(clientFn, outputFn, func() string { return tenant }),
		newSubjectPutCmd(clientFn, outputFn, func() string { return tenant }),
	)

	return cmd
}

func newBillablePutCmd(clientFn func() *Client, outputFn func() *Output, tenantFn func() string) *cobra.Command {
	var req BillableRequest
	var serviceDate string

	cmd := &cobra.Command{
		Use:   "billable ID",
		Short: "Create or replace a billable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if serviceDate != "" {
				d, err := time.Parse(time.DateOnly, serviceDate)
				if err != nil {
					return fmt.Errorf("invalid service date %q, expected YYYY-MM-DD", serviceDate)
				}
				req.ServiceDate = d.Format(time.RFC3339)
			}

			if err := clientFn().PutBillable(tenantFn(), args[0], req); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Billable saved: %s", args[0]))
			return nil
		},
	}

	cmd.Flags().StringVar(&req.SubjectID, "subject", "", "Subject ID")
	cmd.Flags().StringVar(&req.Description, "description", "", "Service description")
	cmd.Flags().Int64Var(&req.AmountCents, "amount", 0, "Amount in cents")
	cmd.Flags().StringVar(&serviceDate, "service-date", "", "Service date (YYYY-MM-DD)")

	return cmd
}

func newSubjectPutCmd(clientFn func() *Client, outputFn func() *Output, tenantFn func() string) *cobra.Command {
	var req SubjectRequest

	cmd := &cobra.Command{
		Use:   "subject ID",
		Short: "Create or replace a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().PutSubject(tenantFn(), args[0], req); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Subject saved: %s", args[0]))
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Subject name")
	cmd.Flags().StringVar(&req.TaxID, "tax-id", "", "Subject tax ID")
	cmd.Flags().StringVar(&req.Email, "email", "", "Subject email")

	return cmd
}
