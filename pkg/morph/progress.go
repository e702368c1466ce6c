package morph

import "github.com/google/uuid"

// Stage identifies a point in a morph's setup.
type Stage string

const (
	StageSampling  Stage = "sampling"
	StageCost      Stage = "cost"
	StageSolving   Stage = "solving"
	StageSolved    Stage = "solved"
	StageAnimating Stage = "animating"
	StageSettled   Stage = "settled"
	StageCancelled Stage = "cancelled"
	StageFailed    Stage = "failed"
)

// Progress is a setup progress event.
type Progress struct {
	ID    uuid.UUID `json:"id"`
	Stage Stage     `json:"stage"`
	// Fraction is the completed share of the stage in [0, 1].
	Fraction float64 `json:"fraction"`
	// CacheHit is set on StageSolved when the assignment came from the cache.
	CacheHit bool  `json:"cache_hit,omitempty"`
	Err      error `json:"-"`
}
