package wall

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation marks caller-supplied parameters that violate the item
// shape or range constraints. Validation failures are surfaced to the
// caller and never persisted.
var ErrValidation = errors.New("invalid graffiti item")

// Bounds for text size in pixels.
const (
	MinTextSize = 8
	MaxTextSize = 300
)

// NormalizePosition applies the fraction heuristic: when both
// components lie in [0,1) the pair is treated as fractions of the
// canvas and scaled to percentages. Values outside that window are used
// as-is, so a legitimate 0.5% coordinate must be paired with a
// component >= 1 to escape the heuristic.
func NormalizePosition(p Position) Position {
	if p.X >= 0 && p.X < 1 && p.Y >= 0 && p.Y < 1 {
		return Position{X: p.X * 100, Y: p.Y * 100}
	}
	return p
}

// NormalizeDimensions applies the same fraction heuristic to an image
// item's percentage box.
func NormalizeDimensions(d Dimensions) Dimensions {
	if d.Width >= 0 && d.Width < 1 && d.Height >= 0 && d.Height < 1 {
		return Dimensions{Width: d.Width * 100, Height: d.Height * 100}
	}
	return d
}

// Validate checks the draft against the range and shape constraints for
// its kind. It expects normalization to have already run.
func (d Draft) Validate() error {
	switch d.Kind {
	case KindText, KindImage:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrValidation, d.Kind)
	}

	if err := checkRange("position.x", d.Position.X, 0, 100); err != nil {
		return err
	}
	if err := checkRange("position.y", d.Position.Y, 0, 100); err != nil {
		return err
	}
	if err := checkRange("rotation", d.Rotation, -360, 360); err != nil {
		return err
	}
	if err := checkRange("opacity", d.Opacity, 0, 1); err != nil {
		return err
	}

	switch d.Kind {
	case KindText:
		if strings.TrimSpace(d.Text) == "" {
			return fmt.Errorf("%w: text is required", ErrValidation)
		}
		if err := checkRange("size", d.Size, MinTextSize, MaxTextSize); err != nil {
			return err
		}
	case KindImage:
		if d.Source == "" {
			return fmt.Errorf("%w: image source is required", ErrValidation)
		}
		if d.Dimensions == nil {
			return fmt.Errorf("%w: dimensions are required", ErrValidation)
		}
		if err := checkRange("dimensions.width", d.Dimensions.Width, 0, 100); err != nil {
			return err
		}
		if err := checkRange("dimensions.height", d.Dimensions.Height, 0, 100); err != nil {
			return err
		}
	}
	return nil
}

func checkRange(field string, value, min, max float64) error {
	if value < min || value > max {
		return fmt.Errorf("%w: %s must be in [%g,%g], got %g", ErrValidation, field, min, max, value)
	}
	return nil
}
