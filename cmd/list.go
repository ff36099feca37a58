package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"unicode"

	"github.com/andresmejia3/watchlist/internal/loader"
	"github.com/andresmejia3/watchlist/internal/types"
	"github.com/andresmejia3/watchlist/internal/utils"
	"github.com/spf13/cobra"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var listOpts struct {
	Gallery string
	Search  string
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List criminal records and how many gallery images each one has",
	Run: func(cmd *cobra.Command, args []string) {
		runList(cmd)
	},
}

func init() {
	listCmd.Flags().StringVarP(&listOpts.Gallery, "gallery", "g", "images", "Directory of labelled face images")
	listCmd.Flags().StringVar(&listOpts.Search, "search", "", "Only show records whose name contains this text (accents ignored)")
	flagAppliers[listCmd] = func(cmd *cobra.Command) {
		if cmd.Flags().Changed("gallery") {
			cfg.Gallery = listOpts.Gallery
		}
	}
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command) {
	profiles, err := openStore()
	if err != nil {
		utils.Die("Failed to open criminal records", err, nil)
	}
	people, err := profiles.Profiles(cmd.Context())
	if err != nil {
		utils.Die("Failed to list records", err, nil)
	}

	counts, err := galleryCounts(cfg.Gallery)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Unable to read gallery %s: %v\n", cfg.Gallery, err)
	}

	people = filterProfiles(people, listOpts.Search)
	if len(people) == 0 {
		fmt.Println("No records found in database.")
		return
	}
	writeProfiles(os.Stdout, people, counts)
}

func writeProfiles(out io.Writer, people []types.Profile, counts map[int]int) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Cr-ID\tNAME\tCRIME\tNATIONALITY\tIMAGES")
	fmt.Fprintln(w, "-----\t----\t-----\t-----------\t------")
	for _, p := range people {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Crime, p.Nationality, counts[p.ID])
	}
	w.Flush()
}

// galleryCounts counts labelled images per id without decoding them.
func galleryCounts(dir string) (map[int]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	counts := make(map[int]int)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, err := loader.ParseIdentity(e.Name())
		if err != nil {
			continue
		}
		n, _ := strconv.Atoi(id)
		counts[n]++
	}
	return counts, nil
}

func filterProfiles(people []types.Profile, search string) []types.Profile {
	if search == "" {
		return people
	}
	needle := normalizeName(search)
	var out []types.Profile
	for _, p := range people {
		if strings.Contains(normalizeName(p.Name), needle) {
			out = append(out, p)
		}
	}
	return out
}

// normalizeName lowercases and strips diacritics ("José" -> "jose").
func normalizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return strings.ToLower(strings.TrimSpace(result))
}
