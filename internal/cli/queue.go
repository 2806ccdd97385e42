package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewQueueCmd создаёт группу команд для очереди выпуска.
func NewQueueCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the issuance queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Show queue availability and job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			h, err := client.QueueHealth()
			if err != nil {
				return err
			}

			out.Card([]Field{
				{"Available", strconv.FormatBool(h.Available)},
				{"Waiting", strconv.FormatInt(h.Waiting, 10)},
				{"Active", strconv.FormatInt(h.Active, 10)},
				{"Completed", strconv.FormatInt(h.Completed, 10)},
				{"Failed", strconv.FormatInt(h.Failed, 10)},
			}, h)
			return nil
		},
	})

	return cmd
}
