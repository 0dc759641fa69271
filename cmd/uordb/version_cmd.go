package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/UOR-Foundation/uordb/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the uordb version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "uordb %s\n", version.Version)
			return err
		},
	}
}
