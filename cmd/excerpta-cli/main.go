// Excerpta CLI — инструмент командной строки для управления
// заказами на выгрузку через HTTP API.
//
// Использование:
//
//	excerpta [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	order         Управление заказами
//	notification  Просмотр уведомлений
//	estimate      Оценка размеров результата
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Excerpta/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "excerpta",
		Short:         "Excerpta CLI — geodata excerpt ordering tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewOrderCmd(clientFn, outputFn),
		cli.NewNotificationCmd(clientFn, outputFn),
		cli.NewEstimateCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
