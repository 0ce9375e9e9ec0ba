package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewEstimateCmd создаёт группу команд оценки размеров.
func NewEstimateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate result sizes before ordering",
	}

	cmd.AddCommand(
		newEstimateExtentCmd(clientFn, outputFn),
		newEstimateFormatsCmd(clientFn, outputFn),
	)

	return cmd
}

func newEstimateExtentCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var west, south, east, north float64

	cmd := &cobra.Command{
		Use:   "extent",
		Short: "Estimate the pbf size of an extent",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			size, err := client.EstimateFileSize(west, south, east, north)
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ESTIMATED_PBF_SIZE_BYTES"},
				[][]string{{strconv.FormatInt(size, 10)}},
				map[string]int64{"estimated_file_size_in_bytes": size},
			)
			return nil
		},
	}

	cmd.Flags().Float64Var(&west, "west", 0, "Western boundary of the extent")
	cmd.Flags().Float64Var(&south, "south", 0, "Southern boundary of the extent")
	cmd.Flags().Float64Var(&east, "east", 0, "Eastern boundary of the extent")
	cmd.Flags().Float64Var(&north, "north", 0, "Northern boundary of the extent")

	return cmd
}

func newEstimateFormatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var pbfSize int64
	var detailLevel int

	cmd := &cobra.Command{
		Use:   "formats",
		Short: "Estimate per-format result sizes from a pbf size",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			sizes, err := client.EstimateFormatSizes(pbfSize, detailLevel)
			if err != nil {
				return err
			}

			headers := []string{"FORMAT", "ESTIMATED_SIZE_BYTES"}
			rows := make([][]string, 0, len(sizes))
			for format, size := range sizes {
				rows = append(rows, []string{format, strconv.FormatInt(size, 10)})
			}

			out.Print(headers, rows, sizes)
			return nil
		},
	}

	cmd.Flags().Int64Var(&pbfSize, "pbf-size", 0, "Estimated pbf size in bytes (required)")
	cmd.Flags().IntVar(&detailLevel, "detail-level", 60, "Zoom detail level")
	cmd.MarkFlagRequired("pbf-size")

	return cmd
}
