package matching

import (
	"fmt"
)

// Thresholds defines the decision boundaries of the matcher
type Thresholds struct {
	Floor               float64 // Default: 0.35 - minimum heuristic score to accept
	AutoAccept          float64 // Default: 0.75 - accept without consulting the classifier
	ShortlistSize       int     // Default: 5 - candidates offered to the classifier
	AmountPenaltyWeight float64 // Default: 0.4 - weight of the amount mismatch penalty
}

// DefaultThresholds returns the default matcher thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		Floor:               0.35,
		AutoAccept:          0.75,
		ShortlistSize:       5,
		AmountPenaltyWeight: 0.4,
	}
}

// Validate ensures threshold values are within valid ranges and logically consistent
func (t *Thresholds) Validate() error {
	if t.Floor < 0.0 || t.Floor > 1.0 {
		return fmt.Errorf("Floor must be between 0.0 and 1.0, got %.2f", t.Floor)
	}

	if t.AutoAccept < 0.0 || t.AutoAccept > 1.0 {
		return fmt.Errorf("AutoAccept must be between 0.0 and 1.0, got %.2f", t.AutoAccept)
	}

	if t.AutoAccept <= t.Floor {
		return fmt.Errorf("AutoAccept must be greater than Floor (auto_accept: %.2f, floor: %.2f)", t.AutoAccept, t.Floor)
	}

	if t.ShortlistSize < 1 {
		return fmt.Errorf("ShortlistSize must be at least 1, got %d", t.ShortlistSize)
	}

	if t.AmountPenaltyWeight < 0.0 || t.AmountPenaltyWeight > 1.0 {
		return fmt.Errorf("AmountPenaltyWeight must be between 0.0 and 1.0, got %.2f", t.AmountPenaltyWeight)
	}

	return nil
}
