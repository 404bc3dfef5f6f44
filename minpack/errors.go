// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minpack

import (
	"errors"
	"fmt"
)

var (
	// ErrImproperInput is the root of all input validation failures.
	ErrImproperInput = errors.New("minpack: improper input")
	// ErrDimension indicates inconsistent problem dimensions.
	ErrDimension = fmt.Errorf("%w: dimension", ErrImproperInput)
	// ErrTolerance indicates a negative tolerance.
	ErrTolerance = fmt.Errorf("%w: tolerance", ErrImproperInput)
	// ErrBudget indicates a non-positive evaluation budget.
	ErrBudget = fmt.Errorf("%w: budget", ErrImproperInput)
	// ErrScaling indicates an invalid factor or scaling vector.
	ErrScaling = fmt.Errorf("%w: scaling", ErrImproperInput)

	// ErrEvaluator wraps a panic recovered from a user callback.
	ErrEvaluator = errors.New("minpack: evaluator panic")
	// ErrStop may be returned by a callback to stop the iteration.
	ErrStop = errors.New("minpack: stop requested")
)
