package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/caffeineduck/starbridge/executor"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run code (stateless execution)",
	Long: `Execute JavaScript with the starlark bridge installed.

Code can be provided via:
  - File argument: starbridge run script.js
  - Inline flag: starbridge run -c 'console.log(starlark.eval("1 + 1"))'
  - Stdin: echo 'console.log(starlark.eval("1 + 1"))' | starbridge run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Code to execute")
}

func runRun(cmd *cobra.Command, args []string) error {
	code, _ := cmd.Flags().GetString("code")

	var source string
	switch {
	case code != "":
		source = code
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		source = string(data)
	default:
		// No piped input, show help
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return cmd.Help()
		}
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		source = string(data)
		if strings.TrimSpace(source) == "" {
			return cmd.Help()
		}
	}

	exec, cfg, err := newExecutor(cmd)
	if err != nil {
		return err
	}
	defer exec.Close()

	result := exec.Run(cmd.Context(), source, executor.WithTimeout(timeoutFor(cmd, cfg)))
	fmt.Fprint(cmd.OutOrStdout(), result.Output)
	return result.Error
}
