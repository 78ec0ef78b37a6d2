// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedStrategy is returned for a strategy name outside the
	// recognized set. It is reported before any file is read.
	ErrUnsupportedStrategy = errors.New("unsupported strategy")

	// ErrAnalysisBudgetExceeded is returned when a build runs out of its
	// step budget. The program is still valid; a cheaper strategy may
	// succeed.
	ErrAnalysisBudgetExceeded = errors.New("analysis budget exceeded")
)

// BudgetExceededError reports which build ran out of budget and where.
type BudgetExceededError struct {
	Strategy Strategy
	Limit    int
	Steps    int
	Phase    string
}

// Error implements error.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s: strategy %s used %d of %d steps during %s",
		ErrAnalysisBudgetExceeded, e.Strategy, e.Steps, e.Limit, e.Phase)
}

// Is matches ErrAnalysisBudgetExceeded.
func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrAnalysisBudgetExceeded
}
