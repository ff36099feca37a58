package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	resetModel     bool
	resetSnapshots bool
	resetYes       bool
	resetSnapDir   string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset generated state (trained model, snapshots)",
	Long:  "Removes generated files. By default, it resets everything. Use flags to clear specific components. The gallery and the criminal records database are never touched.",
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !resetModel && !resetSnapshots {
			resetModel = true
			resetSnapshots = true
		}
		if cmd.Flags().Changed("snapshot-dir") {
			cfg.Watch.Snapshots = resetSnapDir
		}

		reader := bufio.NewReader(os.Stdin)

		if resetModel {
			if resetYes || confirm(reader, os.Stdout, fmt.Sprintf("⚠️  Are you sure you want to delete the trained model %s?", cfg.Training.Model)) {
				fmt.Println("🗑️  Removing trained model...")
				removePath(cfg.Training.Model)
			}
		}

		if resetSnapshots && cfg.Watch.Snapshots != "" {
			if resetYes || confirm(reader, os.Stdout, fmt.Sprintf("⚠️  Are you sure you want to delete all snapshots in %s?", cfg.Watch.Snapshots)) {
				fmt.Println("🗑️  Clearing snapshots...")
				removePath(cfg.Watch.Snapshots)
			}
		}

		fmt.Println("✨ Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetModel, "model", false, "Delete the trained recognizer model")
	resetCmd.Flags().BoolVar(&resetSnapshots, "snapshots", false, "Delete saved snapshots")
	resetCmd.Flags().StringVar(&resetSnapDir, "snapshot-dir", "", "Snapshot directory to clear (default: from config)")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removePath(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
