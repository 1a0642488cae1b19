// Package scoring maps an answer's correctness and latency to points.
package scoring

const (
	// BasePoints is awarded for every correct answer.
	BasePoints = 10
	// FastBonus is added when a correct answer arrives within FastThreshold.
	FastBonus = 5
	// QuickBonus is added when a correct answer arrives within QuickThreshold.
	QuickBonus = 3

	FastThresholdMs  = 3000
	QuickThresholdMs = 5000
)

// Tier names the speed bracket of a response.
type Tier int

const (
	TierFast Tier = iota + 1
	TierQuick
	TierSlow
)

func (t Tier) String() string {
	switch t {
	case TierFast:
		return "fast"
	case TierQuick:
		return "quick"
	default:
		return "slow"
	}
}

// TierFor returns the bonus bracket for a response time. Boundaries are inclusive.
func TierFor(responseTimeMs int) Tier {
	switch {
	case responseTimeMs <= FastThresholdMs:
		return TierFast
	case responseTimeMs <= QuickThresholdMs:
		return TierQuick
	default:
		return TierSlow
	}
}

// Bonus is the speed bonus for a tier.
func (t Tier) Bonus() int {
	switch t {
	case TierFast:
		return FastBonus
	case TierQuick:
		return QuickBonus
	default:
		return 0
	}
}

// Score returns the points for one answer. Incorrect answers and timeouts earn nothing.
func Score(isCorrect bool, responseTimeMs int) int {
	if !isCorrect {
		return 0
	}
	return BasePoints + TierFor(responseTimeMs).Bonus()
}
