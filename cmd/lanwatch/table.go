package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"lanwatch/internal/domain"
	"lanwatch/internal/repository"
)

var (
	outcomeColors = map[domain.ProbeOutcome]*color.Color{
		domain.OutcomeSucceeded:   color.New(color.FgGreen),
		domain.OutcomeHostIsSelf:  color.New(color.FgCyan),
		domain.OutcomeTimedOut:    color.New(color.FgYellow),
		domain.OutcomeUnreachable: color.New(color.FgRed),
	}
	header = color.New(color.Bold)
)

func printSnapshot(w io.Writer, snap *domain.Snapshot) {
	title := fmt.Sprintf("%s  %d devices  %s", snap.Range, len(snap.Devices), snap.CapturedAt.Format("2006-01-02 15:04:05"))
	if snap.Restored {
		title += "  (restored)"
	}
	header.Fprintln(w, title)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tMAC\tHOSTNAME\tTYPE\tOS\tVENDOR\tPORTS\tSTATUS")
	for _, d := range snap.Devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.Address,
			display(d.HardwareAddr),
			display(d.Hostname),
			d.DeviceType,
			d.OSLabel,
			d.VendorLabel,
			display(d.OpenPorts),
			outcomeLabel(d.Outcome),
		)
	}
	tw.Flush()

	s := snap.Stats
	fmt.Fprintf(w, "swept %d, probed %d, retried %d, timed out %d, unreachable %d in %s\n",
		s.Swept, s.Probed, s.Retried, s.TimedOut, s.Unreachable, snap.Duration.Round(time.Millisecond))
}

func printSummaries(w io.Writer, summaries []repository.SnapshotSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCAPTURED\tRANGE\tDEVICES\tRETRIED\tDURATION")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			s.ID, s.CapturedAt.Format("2006-01-02 15:04:05"), s.Range,
			s.DeviceCount, s.Stats.Retried, s.Duration.Round(time.Millisecond))
	}
	tw.Flush()
}

func printSightings(w io.Writer, sightings []repository.Sighting) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tMAC\tHOSTNAME\tTYPE\tFIRST SEEN\tLAST SEEN\tROUNDS")
	for _, s := range sightings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			s.Address, orDash(s.HardwareAddr), orDash(s.Hostname), s.DeviceType,
			s.FirstSeen.Format("2006-01-02 15:04"), s.LastSeen.Format("2006-01-02 15:04"), s.TimesSeen)
	}
	tw.Flush()
}

// display renders a field, with "-" for values that were never looked up
func display[T any](f domain.Field[T]) string {
	if f.IsZero() {
		return "-"
	}
	return orDash(f.String())
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// outcomeLabel colors the status column. It is the last column so escape
// codes do not skew the alignment of the others.
func outcomeLabel(o domain.ProbeOutcome) string {
	label := string(o)
	if label == "" {
		label = "-"
	}
	if c, ok := outcomeColors[o]; ok {
		return c.Sprint(label)
	}
	return label
}
