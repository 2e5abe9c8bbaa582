// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux styles terminal output for the forge CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette, deep ocean teals.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style

	Box      lipgloss.Style
	ErrorBox lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconBullet  Icon = "•"
)

// Mode selects how much decoration a Printer emits.
type Mode int

const (
	// ModeStyled renders colors, icons and boxes.
	ModeStyled Mode = iota

	// ModePlain renders icons without color or boxes.
	ModePlain

	// ModeMachine renders tab-separated lines with word prefixes.
	ModeMachine
)

// ParseMode accepts "styled", "plain" or "machine".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "styled":
		return ModeStyled, nil
	case "plain":
		return ModePlain, nil
	case "machine":
		return ModeMachine, nil
	default:
		return ModePlain, fmt.Errorf("unknown output mode %q", s)
	}
}

// Printer writes styled lines to one writer.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter styles output only when w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	mode := ModePlain
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		mode = ModeStyled
	}
	return &Printer{w: w, mode: mode}
}

// NewPrinterMode creates a Printer with a fixed mode.
func NewPrinterMode(w io.Writer, mode Mode) *Printer {
	return &Printer{w: w, mode: mode}
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode { return p.mode }

// Style renders text with s in styled mode and returns it unchanged
// otherwise.
func (p *Printer) Style(s lipgloss.Style, text string) string {
	if p.mode != ModeStyled {
		return text
	}
	return s.Render(text)
}

// Icon renders an icon in its status color.
func (p *Printer) Icon(i Icon) string {
	switch i {
	case IconSuccess:
		return p.Style(Styles.Success, string(i))
	case IconWarning:
		return p.Style(Styles.Warning, string(i))
	case IconError:
		return p.Style(Styles.Error, string(i))
	case IconPending:
		return p.Style(Styles.Muted, string(i))
	default:
		return string(i)
	}
}

// Title prints a heading. Machine mode skips it.
func (p *Printer) Title(text string) {
	if p.mode == ModeMachine {
		return
	}
	fmt.Fprintln(p.w, p.Style(Styles.Title, text))
}

// Success prints a line with a checkmark.
func (p *Printer) Success(text string) {
	p.status("OK", IconSuccess, Styles.Success, text)
}

// Warning prints a line with a warning sign.
func (p *Printer) Warning(text string) {
	p.status("WARN", IconWarning, Styles.Warning, text)
}

// Error prints a line with a cross.
func (p *Printer) Error(text string) {
	p.status("ERROR", IconError, Styles.Error, text)
}

func (p *Printer) status(prefix string, icon Icon, s lipgloss.Style, text string) {
	if p.mode == ModeMachine {
		fmt.Fprintf(p.w, "%s: %s\n", prefix, text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", p.Icon(icon), p.Style(s, text))
}

// Info prints an indented detail line.
func (p *Printer) Info(text string) {
	if p.mode == ModeMachine {
		fmt.Fprintln(p.w, text)
		return
	}
	fmt.Fprintf(p.w, "  %s %s\n", p.Style(Styles.Muted, "│"), text)
}

// Muted prints secondary text. Machine mode skips it.
func (p *Printer) Muted(text string) {
	if p.mode == ModeMachine {
		return
	}
	fmt.Fprintln(p.w, p.Style(Styles.Muted, text))
}

// Box prints content under a title, boxed in styled mode.
func (p *Printer) Box(title, content string) {
	p.box(Styles.Box, Styles.Title, title, content)
}

// ErrorBox is Box with error colors.
func (p *Printer) ErrorBox(title, content string) {
	p.box(Styles.ErrorBox, Styles.Error.Bold(true), title, content)
}

func (p *Printer) box(box, head lipgloss.Style, title, content string) {
	content = strings.TrimRight(content, "\n")
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.w, "%s:\n%s\n", title, content)
	case ModePlain:
		fmt.Fprintf(p.w, "%s\n%s\n", title, content)
	default:
		fmt.Fprintln(p.w, box.Width(80).Render(head.Render(title)+"\n"+content))
	}
}

// Row prints one status row: icon, name and a muted note.
func (p *Printer) Row(icon Icon, name, note string) {
	if p.mode == ModeMachine {
		fmt.Fprintf(p.w, "%s\t%s\t%s\n", icon, name, note)
		return
	}
	if note == "" {
		fmt.Fprintf(p.w, "%s %s\n", p.Icon(icon), name)
		return
	}
	fmt.Fprintf(p.w, "%s %s %s\n", p.Icon(icon), name, p.Style(Styles.Muted, "("+note+")"))
}

// Summary prints the accepted, failed and total counts of a run.
func (p *Printer) Summary(accepted, failed, total int) {
	if p.mode == ModeMachine {
		fmt.Fprintf(p.w, "SUMMARY: accepted=%d failed=%d total=%d\n", accepted, failed, total)
		return
	}
	fmt.Fprintf(p.w, "\n%s %s  %s %s  %s %s\n",
		p.Style(Styles.Success, fmt.Sprintf("%d", accepted)), p.Style(Styles.Muted, "accepted"),
		p.Style(Styles.Error, fmt.Sprintf("%d", failed)), p.Style(Styles.Muted, "failed"),
		p.Style(Styles.Bold, fmt.Sprintf("%d", total)), p.Style(Styles.Muted, "total"),
	)
}
