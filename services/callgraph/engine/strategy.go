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
	"fmt"
	"log/slog"
	"strings"
)

// Strategy selects how call sites are resolved.
type Strategy uint8

const (
	// StrategyNone links every call site to every function.
	StrategyNone Strategy = iota

	// StrategyOneShot links call sites to functions by name.
	StrategyOneShot

	// StrategyDemand tracks where function values flow.
	StrategyDemand

	// StrategyFull is accepted but runs as StrategyDemand.
	StrategyFull
)

// DefaultStrategy is used when no strategy is configured.
const DefaultStrategy = StrategyOneShot

var strategyNames = [...]string{
	StrategyNone:    "NONE",
	StrategyOneShot: "ONESHOT",
	StrategyDemand:  "DEMAND",
	StrategyFull:    "FULL",
}

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("Strategy(%d)", uint8(s))
}

// ParseStrategy parses a strategy name, case-insensitively. An empty
// string yields DefaultStrategy.
func ParseStrategy(name string) (Strategy, error) {
	if strings.TrimSpace(name) == "" {
		return DefaultStrategy, nil
	}
	for i, n := range strategyNames {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q (expected one of NONE, ONESHOT, DEMAND, FULL)", ErrUnsupportedStrategy, name)
}

// fullFallbackMessage is printed when FULL is requested.
const fullFallbackMessage = "strategy FULL not implemented yet; using DEMAND instead"

// Resolve maps a requested strategy to the one that actually runs.
// FULL is not implemented and resolves to DEMAND with a warning.
func (s Strategy) Resolve(logger *slog.Logger) Strategy {
	if s != StrategyFull {
		return s
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn(fullFallbackMessage,
		slog.String("requested", StrategyFull.String()),
		slog.String("effective", StrategyDemand.String()),
	)
	return StrategyDemand
}
