// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"errors"
	"fmt"
)

var (
	// ErrFileTooLarge is returned when a file exceeds the parser's MaxFileSize.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrInvalidContent is returned when a file is not valid UTF-8.
	ErrInvalidContent = errors.New("file content is not valid UTF-8")

	// ErrNoSources is returned when Build is called without any input.
	ErrNoSources = errors.New("no source files given")

	// ErrBindingsNotResolved is returned when binding annotations are read
	// before the binding resolver ran on the Program.
	ErrBindingsNotResolved = errors.New("bindings have not been resolved for this program")

	// ErrBindingsAlreadyResolved is returned when the binding resolver
	// tries to annotate a Program a second time.
	ErrBindingsAlreadyResolved = errors.New("bindings already attached to this program")
)

// ParseError reports a file that is not valid JavaScript.
//
// Description:
//
//	The whole Build aborts on the first ParseError; no partial Program is
//	returned. Line is 1-based, Column 0-based, matching Location.
//	Err optionally carries an underlying sentinel (ErrFileTooLarge,
//	ErrInvalidContent) for errors.Is checks.
type ParseError struct {
	File   string
	Line   int
	Column int
	Msg    string
	Err    error
}

// Error implements error.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Msg)
}

// Unwrap returns the underlying sentinel, if any.
func (e *ParseError) Unwrap() error {
	return e.Err
}
