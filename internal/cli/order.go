package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewOrderCmd создаёт группу команд для управления заказами.
func NewOrderCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Manage extraction orders",
	}

	cmd.AddCommand(
		newOrderListCmd(clientFn, outputFn),
		newOrderCreateCmd(clientFn, outputFn),
		newOrderShowCmd(clientFn, outputFn),
		newOrderDownloadCmd(clientFn, outputFn),
	)

	return cmd
}

func newOrderListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var ordererID string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List extraction orders of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			orders, err := client.ListOrders(ordererID, limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "STATE", "DOWNLOAD", "FORMATS", "CREATED"}
			rows := make([][]string, len(orders))
			for i, o := range orders {
				rows[i] = []string{o.ID, o.State, o.DownloadStatus, strings.Join(o.Formats, ","), o.CreatedAt}
			}

			out.Print(headers, rows, orders)
			return nil
		},
	}

	cmd.Flags().StringVar(&ordererID, "orderer-id", "", "Orderer user ID (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.MarkFlagRequired("orderer-id")

	return cmd
}

func newOrderCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var ordererID, name, email string
	var groups, formats []string
	var west, south, east, north float64
	var polyfile string
	var options []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new extraction order",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := CreateOrderRequest{
				Orderer: OrdererPayload{
					ID:     ordererID,
					Name:   name,
					Email:  email,
					Groups: groups,
				},
				Formats: formats,
				Extent: ExtentPayload{
					West:     west,
					South:    south,
					East:     east,
					North:    north,
					Polyfile: polyfile,
				},
			}

			if len(options) > 0 {
				req.Options = make(map[string]string)
				for _, kv := range options {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid option format %q, expected KEY=VALUE", kv)
					}
					req.Options[parts[0]] = parts[1]
				}
			}

			order, err := client.CreateOrder(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Order created: %s", order.ID))
			out.Print(
				[]string{"ID", "STATE", "FORMATS", "CREATED"},
				[][]string{{order.ID, order.State, strings.Join(order.Formats, ","), order.CreatedAt}},
				order,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&ordererID, "orderer-id", "", "Orderer user ID (required)")
	cmd.Flags().StringVar(&name, "name", "", "Orderer display name")
	cmd.Flags().StringVar(&email, "email", "", "Orderer email for notifications")
	cmd.Flags().StringSliceVar(&groups, "group", nil, "Orderer group (repeatable)")
	cmd.Flags().StringSliceVar(&formats, "format", nil, "Output format (repeatable, required)")
	cmd.Flags().Float64Var(&west, "west", 0, "Western boundary of the extent")
	cmd.Flags().Float64Var(&south, "south", 0, "Southern boundary of the extent")
	cmd.Flags().Float64Var(&east, "east", 0, "Eastern boundary of the extent")
	cmd.Flags().Float64Var(&north, "north", 0, "Northern boundary of the extent")
	cmd.Flags().StringVar(&polyfile, "polyfile", "", "Polyfile content for arbitrary polygons")
	cmd.Flags().StringSliceVar(&options, "option", nil, "Conversion option as KEY=VALUE (repeatable)")
	cmd.MarkFlagRequired("orderer-id")
	cmd.MarkFlagRequired("format")

	return cmd
}

func newOrderShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show order details with result files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			order, err := client.GetOrder(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "STATE", "DOWNLOAD", "FORMATS", "ERROR", "CREATED"},
				[][]string{{order.ID, order.State, order.DownloadStatus, strings.Join(order.Formats, ","), order.Error, order.CreatedAt}},
				order,
			)

			if len(order.Files) > 0 && !out.jsonMode {
				headers := []string{"PUBLIC_ID", "FORMAT", "FILE_NAME"}
				rows := make([][]string, len(order.Files))
				for i, f := range order.Files {
					rows[i] = []string{f.PublicIdentifier, f.Format, f.FileName}
				}
				out.Table(headers, rows)
			}
			return nil
		},
	}
}

func newOrderDownloadCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var destDir string

	cmd := &cobra.Command{
		Use:   "download ORDER_ID",
		Short: "Download all result files of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			order, err := client.GetOrder(args[0])
			if err != nil {
				return err
			}

			if len(order.Files) == 0 {
				out.Error("order has no downloadable files yet")
				return nil
			}

			for _, f := range order.Files {
				dest, err := client.DownloadFile(f.PublicIdentifier, f.FileName, destDir)
				if err != nil {
					return fmt.Errorf("download %s: %w", f.Format, err)
				}
				out.Success(fmt.Sprintf("Downloaded %s: %s", f.Format, dest))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&destDir, "dest", ".", "Destination directory")

	return cmd
}
