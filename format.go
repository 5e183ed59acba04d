package main

import (
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// stdoutIsTTY reports whether stdout is a terminal. Piped output gets
// tab-separated columns instead of padded tables.
func stdoutIsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// printTable writes aligned columns when stdout is a terminal, or
// tab-separated values when piped. headers and each row must have the
// same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	if !stdoutIsTTY() {
		for _, row := range rows {
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}

		return
	}

	// Compute column widths.
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

// formatDate renders an RFC 822 Date header compactly: "Jan  2 15:04"
// within the current year, "Jan  2  2006" otherwise. Unparseable dates
// are passed through truncated.
func formatDate(raw string) string {
	t, err := mail.ParseDate(raw)
	if err != nil {
		return truncate(raw, 16)
	}

	if t.Year() == time.Now().Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// formatSender reduces a From header to the display name, or the bare
// address when no name is present.
func formatSender(raw string) string {
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return raw
	}

	if addr.Name != "" {
		return addr.Name
	}

	return addr.Address
}

// truncate shortens s to max runes, appending an ellipsis when cut.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}

	if max <= 1 {
		return string(runes[:max])
	}

	return string(runes[:max-1]) + "…"
}
