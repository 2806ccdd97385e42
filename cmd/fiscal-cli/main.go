// fiscal-cli — инструмент командной строки для работы
// с фискальными документами через HTTP API.
//
// Использование:
//
//	fiscal-cli [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	doc        Выпуск, повтор, отмена и просмотр документов
//	directory  Справочник счетов и получателей
//	queue      Состояние очереди выпуска
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/fiscaldoc/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	defaultURL := "http://localhost:8080"
	if v := os.Getenv("FISCAL_API_URL"); v != "" {
		defaultURL = v
	}

	rootCmd := &cobra.Command{
		Use:           "fiscal-cli",
		Short:         "fiscal-cli — fiscal document issuance tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewDocCmd(clientFn, outputFn),
		cli.NewDirectoryCmd(clientFn, outputFn),
		cli.NewQueueCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
