package cli

import (
	"github.com/spf13/cobra"
)

// NewNotificationCmd создаёт группу команд для просмотра уведомлений.
func NewNotificationCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notification",
		Short: "View user notifications",
	}

	cmd.AddCommand(newNotificationListCmd(clientFn, outputFn))

	return cmd
}

func newNotificationListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list USER_ID",
		Short: "List notifications of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			notifications, err := client.ListNotifications(args[0], limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "LEVEL", "MESSAGE", "CREATED"}
			rows := make([][]string, len(notifications))
			for i, n := range notifications {
				rows[i] = []string{n.ID, n.Level, n.Message, n.CreatedAt}
			}

			out.Print(headers, rows, notifications)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}
