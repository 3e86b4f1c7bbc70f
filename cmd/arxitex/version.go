package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the arxitex version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("arxitex %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
