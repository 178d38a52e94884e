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

// Package errors provides user-facing error types for the CLI and server.
//
// A UserError carries three layers of information: what happened (title),
// why it happened (detail), and what the user can do about it (suggestion).
// Internal errors are wrapped so `%w` chains stay intact for logging.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Kind classifies a UserError for exit codes and JSON output.
type Kind string

const (
	KindConfig     Kind = "config"
	KindDatabase   Kind = "database"
	KindNetwork    Kind = "network"
	KindPermission Kind = "permission"
	KindValidation Kind = "validation"
	KindInternal   Kind = "internal"
)

// UserError is an error with enough context to be shown to a human.
type UserError struct {
	Kind       Kind   `json:"kind"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	Suggestion string `json:"suggestion,omitempty"`
	Err        error  `json:"-"`
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Title, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

func (e *UserError) Unwrap() error { return e.Err }

func newUserError(kind Kind, title, detail, suggestion string, err error) *UserError {
	return &UserError{Kind: kind, Title: title, Detail: detail, Suggestion: suggestion, Err: err}
}

// NewConfigError reports a configuration problem.
func NewConfigError(title, detail, suggestion string, err error) *UserError {
	return newUserError(KindConfig, title, detail, suggestion, err)
}

// NewDatabaseError reports a storage problem.
func NewDatabaseError(title, detail, suggestion string, err error) *UserError {
	return newUserError(KindDatabase, title, detail, suggestion, err)
}

// NewNetworkError reports a connectivity problem with an external service.
func NewNetworkError(title, detail, suggestion string, err error) *UserError {
	return newUserError(KindNetwork, title, detail, suggestion, err)
}

// NewPermissionError reports a filesystem or privilege problem.
func NewPermissionError(title, detail, suggestion string, err error) *UserError {
	return newUserError(KindPermission, title, detail, suggestion, err)
}

// NewValidationError reports malformed user input.
func NewValidationError(title, detail, suggestion string, err error) *UserError {
	return newUserError(KindValidation, title, detail, suggestion, err)
}

// NewInternalError reports an unexpected internal failure.
func NewInternalError(title, detail, suggestion string, err error) *UserError {
	return newUserError(KindInternal, title, detail, suggestion, err)
}

// AsUserError extracts a UserError from an error chain, wrapping unknown
// errors as internal.
func AsUserError(err error) *UserError {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue
	}
	return NewInternalError(
		"Unexpected error",
		err.Error(),
		"If this persists, please report it at github.com/kraklabs/repograph/issues",
		err,
	)
}

// FatalError prints the error and exits with a non-zero status.
// When jsonOutput is set the error is rendered as a JSON object on stderr.
func FatalError(err error, jsonOutput bool) {
	ue := AsUserError(err)

	if jsonOutput {
		enc := json.NewEncoder(os.Stderr)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{
			"error":      ue.Title,
			"kind":       ue.Kind,
			"detail":     ue.Detail,
			"suggestion": ue.Suggestion,
		})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", ue.Title)
		if ue.Detail != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", ue.Detail)
		}
		if ue.Suggestion != "" {
			fmt.Fprintf(os.Stderr, "\n  Try: %s\n", ue.Suggestion)
		}
	}

	os.Exit(1)
}
