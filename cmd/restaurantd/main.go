package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "restaurantd",
	Short: "Restaurant operations core daemon and maintenance CLI",
	Long: `restaurantd runs the restaurant operations core: the camera
pipeline, the fairness-first party router, and the scheduling and
analytics batch jobs, backed by a single sqlite-per-process state store.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
