// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Composition of per-source frames into a single annotated output frame.

package compose

import (
	"fmt"
	"image"

	"github.com/evolution-gaming/tearscope/internal/vqm"
)

// Item is one processed frame of a source together with its metrics.
type Item struct {
	Label  string
	Frame  *image.RGBA
	Sample vqm.Sample
}

// Sink composes items of one batch into an output frame.
type Sink interface {
	Compose(items []Item) (image.Image, error)
}

// CompositionError reports items that cannot be composed, e.g. count or
// resolution mismatch.
type CompositionError struct {
	Reason string
	Err    error
}

func (e *CompositionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("composition: %s: %v", e.Reason, e.Err)
	}
	return "composition: " + e.Reason
}

func (e *CompositionError) Unwrap() error {
	return e.Err
}

func compositionErrorf(format string, a ...any) *CompositionError {
	return &CompositionError{Reason: fmt.Sprintf(format, a...)}
}
