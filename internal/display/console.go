// Package display renders match results: a console table of sightings and
// annotated snapshot images.
package display

import (
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/andresmejia3/watchlist/internal/types"
)

// Console prints one aligned row per sighting. The header is written before
// the first row.
type Console struct {
	mu     sync.Mutex
	w      *tabwriter.Writer
	header bool
}

// NewConsole writes to out.
func NewConsole(out io.Writer) *Console {
	return &Console{w: tabwriter.NewWriter(out, 12, 0, 2, ' ', 0)}
}

// Insert implements pipeline.Table.
func (c *Console) Insert(s types.Sighting) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.header {
		fmt.Fprintln(c.w, "Cr-ID\tNAME\tCRIME\tNATIONALITY\tMATCHING %")
		c.header = true
	}
	p := s.Profile
	fmt.Fprintf(c.w, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Crime, p.Nationality, Percent(s.Confidence))
	c.w.Flush()
}

// Percent formats a confidence in [0,1] as a percentage with two decimals.
func Percent(confidence float64) string {
	return fmt.Sprintf("%.2f%%", confidence*100)
}
