// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides terminal output helpers shared by the CLI commands.
// Colors are disabled automatically when stdout is not a TTY.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	Green  = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Red    = color.New(color.FgRed)
	Cyan   = color.New(color.FgCyan)
	Bold   = color.New(color.Bold)
	Dim    = color.New(color.Faint)
)

func init() {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

// Header prints a bold section header with an underline.
func Header(text string) {
	fmt.Println()
	_, _ = Bold.Println(text)
	for range len(text) {
		fmt.Print("─")
	}
	fmt.Println()
}

// SubHeader prints a bold sub-section header.
func SubHeader(text string) {
	_, _ = Bold.Println(text)
}

// Label returns a dimmed label string for key/value lines.
func Label(text string) string {
	return Dim.Sprint(text)
}

// CountText formats an integer count in cyan.
func CountText(n int) string {
	return Cyan.Sprintf("%d", n)
}

// DimText formats supplementary text dimmed.
func DimText(text string) string {
	return Dim.Sprint(text)
}
