package common

import (
	"fmt"
	"time"
)

// ExecutedTrade records a single match between a resting order (filled) and
// the aggressor that crossed it (filler). An aggressor that sweeps several
// resting orders produces one ExecutedTrade per resting order consumed.
type ExecutedTrade struct {
	Symbol     string
	Side       Side // Side of the aggressor.
	Price      float64
	FilledOID  uint64 // Resting order's id.
	FilledUID  uint64
	FillerOID  uint64 // Aggressor order's id.
	FillerUID  uint64
	Quantity   uint64
	ExecutedAt time.Time
}

func (t ExecutedTrade) String() string {
	return fmt.Sprintf(
		`Symbol:     %s
Side:       %v
Price:      %.2f
FilledOID:  %d (user %d)
FillerOID:  %d (user %d)
Quantity:   %d
ExecutedAt: %v`,
		t.Symbol,
		t.Side,
		t.Price,
		t.FilledOID,
		t.FilledUID,
		t.FillerOID,
		t.FillerUID,
		t.Quantity,
		t.ExecutedAt.Format(time.RFC3339),
	)
}
