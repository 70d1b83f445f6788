// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package ui holds the human-readable side of the codegraph CLI: color
// helpers that respect --no-color and the NO_COLOR environment
// variable, and degrade automatically when stdout is not a TTY.
//
// Color conventions:
//   - Red: errors, failed updates
//   - Yellow: warnings, partial results
//   - Green: success, completed runs
//   - Cyan: informational messages, counts
//   - Bold: headers and labels
//   - Dim: paths and secondary detail
package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

var (
	Red    = color.New(color.FgRed)
	Yellow = color.New(color.FgYellow)
	Green  = color.New(color.FgGreen)
	Cyan   = color.New(color.FgCyan)
	Bold   = color.New(color.Bold)
	Dim    = color.New(color.Faint)
)

// InitColors applies the --no-color flag. The color library handles
// NO_COLOR and non-TTY output on its own.
func InitColors(noColor bool) {
	if noColor {
		color.NoColor = true
	}
}

// Success prints a green message with a checkmark prefix.
func Success(msg string) {
	_, _ = Green.Println("✓ " + msg)
}

// Successf prints a formatted green message with a checkmark prefix.
func Successf(format string, args ...any) {
	_, _ = Green.Printf("✓ "+format+"\n", args...)
}

// Warning prints a yellow message with a warning prefix.
func Warning(msg string) {
	_, _ = Yellow.Println("⚠ " + msg)
}

// Warningf prints a formatted yellow message with a warning prefix.
func Warningf(format string, args ...any) {
	_, _ = Yellow.Printf("⚠ "+format+"\n", args...)
}

// Error prints a red message with an X prefix.
func Error(msg string) {
	_, _ = Red.Println("✗ " + msg)
}

// Errorf prints a formatted red message with an X prefix.
func Errorf(format string, args ...any) {
	_, _ = Red.Printf("✗ "+format+"\n", args...)
}

// Info prints a cyan informational message.
func Info(msg string) {
	_, _ = Cyan.Println("ℹ " + msg)
}

// Infof prints a formatted cyan informational message.
func Infof(format string, args ...any) {
	_, _ = Cyan.Printf("ℹ "+format+"\n", args...)
}

// Header prints a bold title with an underline separator.
func Header(text string) {
	_, _ = Bold.Println(text)
	fmt.Println(strings.Repeat("=", len(text)))
}

// SubHeader prints a bold section title.
func SubHeader(text string) {
	_, _ = Bold.Println(text)
}

// Label returns a bold label for inline formatting.
func Label(text string) string {
	return Bold.Sprint(text)
}

// DimText returns dim-formatted secondary text.
func DimText(text string) string {
	return Dim.Sprint(text)
}

// CountText returns a cyan-formatted count for statistics lines.
func CountText(count int) string {
	return Cyan.Sprint(count)
}

// StatusText colors an update status by severity.
func StatusText(status string) string {
	switch status {
	case "success", "ready", "no_changes":
		return Green.Sprint(status)
	case "partial", "indexing":
		return Yellow.Sprint(status)
	case "failed", "error":
		return Red.Sprint(status)
	}
	return status
}
