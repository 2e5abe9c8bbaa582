// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"styled", ModeStyled, false},
		{" Plain ", ModePlain, false},
		{"MACHINE", ModeMachine, false},
		{"loud", ModePlain, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewPrinter_BufferIsPlain(t *testing.T) {
	p := NewPrinter(&bytes.Buffer{})
	if p.Mode() != ModePlain {
		t.Errorf("expected plain mode for a buffer, got %v", p.Mode())
	}
}

func TestPrinter_Plain(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinterMode(&buf, ModePlain)

	p.Title("Run")
	p.Success("accepted")
	p.Warning("retrying")
	p.Error("failed")
	p.Info("detail")
	p.Row(IconSuccess, "worker", "1 attempt")
	p.Row(IconError, "parser", "")

	want := "Run\n" +
		"✓ accepted\n" +
		"⚠ retrying\n" +
		"✗ failed\n" +
		"  │ detail\n" +
		"✓ worker (1 attempt)\n" +
		"✗ parser\n"
	if buf.String() != want {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestPrinter_Machine(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinterMode(&buf, ModeMachine)

	p.Title("hidden")
	p.Muted("hidden")
	p.Success("ok")
	p.Error("bad")
	p.Row(IconWarning, "worker", "note")
	p.Summary(2, 1, 3)

	want := "OK: ok\n" +
		"ERROR: bad\n" +
		"⚠\tworker\tnote\n" +
		"SUMMARY: accepted=2 failed=1 total=3\n"
	if buf.String() != want {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestPrinter_StyleOnlyWhenStyled(t *testing.T) {
	plain := NewPrinterMode(&bytes.Buffer{}, ModePlain)
	if got := plain.Style(Styles.Error, "x"); got != "x" {
		t.Errorf("plain Style = %q, want %q", got, "x")
	}
	if got := plain.Icon(IconBullet); got != "•" {
		t.Errorf("plain Icon = %q", got)
	}
}

func TestPrinter_Box(t *testing.T) {
	var buf bytes.Buffer
	NewPrinterMode(&buf, ModePlain).ErrorBox("worker failed", "attempt 1: failed\n")
	if buf.String() != "worker failed\nattempt 1: failed\n" {
		t.Errorf("unexpected plain box: %q", buf.String())
	}

	buf.Reset()
	NewPrinterMode(&buf, ModeStyled).Box("title", "body")
	out := buf.String()
	if !strings.Contains(out, "title") || !strings.Contains(out, "body") {
		t.Errorf("styled box lost its content: %q", out)
	}
}

func TestPrinter_Summary(t *testing.T) {
	var buf bytes.Buffer
	NewPrinterMode(&buf, ModePlain).Summary(3, 0, 3)
	if buf.String() != "\n3 accepted  0 failed  3 total\n" {
		t.Errorf("unexpected summary: %q", buf.String())
	}
}
