package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List modules importable from Starlark",
	Long: `List the module names scripts can pass to starlark.import() or load():
host modules enabled by flags or config, the Starlark library modules, and
NAME.star files on the module path.`,
	Args: cobra.NoArgs,
	RunE: runModules,
}

func init() {
	rootCmd.AddCommand(modulesCmd)
}

func runModules(cmd *cobra.Command, args []string) error {
	exec, _, err := newExecutor(cmd)
	if err != nil {
		return err
	}
	defer exec.Close()

	modules, err := exec.Modules()
	if err != nil {
		return err
	}
	for _, name := range modules {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}
