package adherence

// Tier is the coarse adherence band used for coloring.
type Tier string

const (
	TierNone   Tier = "none"
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Tier boundaries; each band includes its lower bound.
const (
	MediumThreshold = 0.33
	HighThreshold   = 0.66
)

// TierFor bands a taken/scheduled ratio.
func TierFor(ratio float64) Tier {
	switch {
	case ratio < MediumThreshold:
		return TierLow
	case ratio < HighThreshold:
		return TierMedium
	default:
		return TierHigh
	}
}

// Tier returns the band of a ratio cell and TierNone for every other status.
func (c Cell) Tier() Tier {
	if c.Status != StatusRatio {
		return TierNone
	}
	return TierFor(c.Ratio)
}

// CSSClass is the class the web client keys its palette on.
func (t Tier) CSSClass() string {
	switch t {
	case TierLow:
		return "low-adherence"
	case TierMedium:
		return "med-adherence"
	case TierHigh:
		return "high-adherence"
	default:
		return "no-data"
	}
}
