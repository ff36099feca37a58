package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/andresmejia3/watchlist/internal/display"
	"github.com/andresmejia3/watchlist/internal/engine"
	"github.com/andresmejia3/watchlist/internal/store"
	"github.com/andresmejia3/watchlist/internal/types"
	"github.com/andresmejia3/watchlist/internal/utils"
	"github.com/spf13/cobra"
)

var findOpts struct {
	Gallery   string
	Threshold float64
}

var findCmd = &cobra.Command{
	Use:   "find <image_path>",
	Short: "Match the face in a still image against the gallery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runFind(cmd.Context(), args[0])
	},
}

func init() {
	findCmd.Flags().StringVarP(&findOpts.Gallery, "gallery", "g", "images", "Directory of labelled face images")
	findCmd.Flags().Float64VarP(&findOpts.Threshold, "threshold", "t", 0.6, "Face matching threshold (lower is stricter)")
	flagAppliers[findCmd] = func(cmd *cobra.Command) {
		if cmd.Flags().Changed("gallery") {
			cfg.Gallery = findOpts.Gallery
		}
		if cmd.Flags().Changed("threshold") {
			cfg.Match.Threshold = findOpts.Threshold
		}
	}
	rootCmd.AddCommand(findCmd)
}

func runFind(ctx context.Context, imagePath string) error {
	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}

	eng, proc, err := startEngine(ctx)
	if err != nil {
		utils.ShowError("Failed to start face engine", err, proc)
		return err
	}
	defer eng.Close()

	gallery, _, err := loadGallery(ctx, eng, cfg.Gallery)
	if err != nil {
		utils.ShowError("Failed to load gallery", err, proc)
		return err
	}
	m, err := newMatcher(gallery)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
	faces, err := eng.Detect(ctx, types.Frame{Data: imgData})
	if err != nil {
		utils.ShowError("Face detection failed", err, proc)
		return err
	}
	if len(faces) > 1 {
		fmt.Printf("⚠️  Multiple faces detected (%d). Using the largest face.\n", len(faces))
	}
	best, ok := engine.Largest(faces)
	if !ok {
		fmt.Println("❌ No faces detected in the provided image.")
		return nil
	}

	res := m.Match(best.Feature)
	if !m.Confirmed(res) {
		fmt.Printf("❌ No match found in gallery (closest score %s).\n", display.Percent(res.Confidence))
		return nil
	}

	profiles, err := openStore()
	if err != nil {
		utils.ShowError("Failed to open criminal records", err, nil)
		return err
	}
	id, _ := strconv.Atoi(res.Identity)
	p, err := profiles.Profile(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Printf("✅ Found Match: ID %s (%s), but it has no criminal record.\n", res.Identity, display.Percent(res.Confidence))
		return nil
	}
	if err != nil {
		utils.ShowError("Database lookup failed", err, nil)
		return err
	}

	fmt.Printf("✅ Found Match: %s (ID: %d)\n", p.Name, p.ID)
	printProfile(os.Stdout, *p, res.Confidence)
	return nil
}

func printProfile(out io.Writer, p types.Profile, confidence float64) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "\nCr-ID\tNAME\tCRIME\tNATIONALITY\tMATCHING %")
	fmt.Fprintln(w, "-----\t----\t-----\t-----------\t----------")
	fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Crime, p.Nationality, display.Percent(confidence))
	w.Flush()
}
