// Package report renders the end-of-run summaries shown on the console.
// Structured logging stays in plog; this package is only the human-facing
// closing block every run prints, dry-run or live.
package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

var out io.Writer = os.Stdout

// SetOutput redirects summary output, used by tests.
func SetOutput(w io.Writer) {
	out = w
}

var (
	headline = color.New(color.FgCyan, color.Bold)
	emphasis = color.New(color.FgGreen)
	caution  = color.New(color.FgYellow)
)

// DuplicatesSummary is the closing block of a duplicates run.
type DuplicatesSummary struct {
	Root        string
	TotalFiles  int
	Candidates  int
	GroupCount  int
	DoomedCount int
	WastedBytes int64
	Deleted     int64
	Reclaimed   int64
	Errors      int64
	DryRun      bool
	Duration    time.Duration
}

// Print renders the duplicates summary.
func (s DuplicatesSummary) Print() {
	headline.Fprintln(out, "Duplicate scan complete")
	fmt.Fprintf(out, "  root:            %s\n", s.Root)
	fmt.Fprintf(out, "  files scanned:   %d\n", s.TotalFiles)
	fmt.Fprintf(out, "  candidates:      %d\n", s.Candidates)
	fmt.Fprintf(out, "  duplicate groups: %d\n", s.GroupCount)
	fmt.Fprintf(out, "  redundant files: %d\n", s.DoomedCount)
	fmt.Fprintf(out, "  reclaimable:     %s\n", humanize.IBytes(uint64(s.WastedBytes)))
	if s.Deleted > 0 || s.DryRun {
		verb := "deleted"
		if s.DryRun {
			verb = "would delete"
		}
		emphasis.Fprintf(out, "  %s: %d files, %s\n", verb, s.Deleted, humanize.IBytes(uint64(s.Reclaimed)))
	}
	if s.Errors > 0 {
		caution.Fprintf(out, "  errors:          %d (see log)\n", s.Errors)
	}
	fmt.Fprintf(out, "  duration:        %s\n", s.Duration.Truncate(time.Millisecond))
}

// SyncSummary is the closing block of a sync run.
type SyncSummary struct {
	Source      string
	Dest        string
	TotalFiles  int
	Copied      int64
	CopiedBytes int64
	UpToDate    int64
	Failed      int64
	CacheHits   int64
	Deep        bool
	DryRun      bool
	Duration    time.Duration
}

// Print renders the sync summary.
func (s SyncSummary) Print() {
	mode := "shallow"
	if s.Deep {
		mode = "deep"
	}
	headline.Fprintf(out, "Sync complete (%s)\n", mode)
	fmt.Fprintf(out, "  source:        %s\n", s.Source)
	fmt.Fprintf(out, "  destination:   %s\n", s.Dest)
	fmt.Fprintf(out, "  files scanned: %d\n", s.TotalFiles)
	verb := "copied"
	if s.DryRun {
		verb = "would copy"
	}
	emphasis.Fprintf(out, "  %s: %d files, %s\n", verb, s.Copied, humanize.IBytes(uint64(s.CopiedBytes)))
	fmt.Fprintf(out, "  up to date:    %d\n", s.UpToDate)
	fmt.Fprintf(out, "  cache hits:    %d\n", s.CacheHits)
	if s.Failed > 0 {
		caution.Fprintf(out, "  failed:        %d (see log)\n", s.Failed)
	}
	fmt.Fprintf(out, "  duration:      %s\n", s.Duration.Truncate(time.Millisecond))
}
