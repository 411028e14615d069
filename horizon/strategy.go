package horizon

// Strategy selects which TAP receipt generation a query path should
// produce, based on whether Horizon is currently active network-wide as
// observed by Tracker (spec §4.2).
type Strategy int

const (
	// PreHorizon produces allocation-addressed (v1) receipts.
	PreHorizon Strategy = iota
	// PostHorizon produces collection-addressed (v2) receipts.
	PostHorizon
)

func (s Strategy) String() string {
	if s == PostHorizon {
		return "post-horizon"
	}
	return "pre-horizon"
}

// ShouldGenerateV1 reports whether this strategy produces v1 receipts.
func (s Strategy) ShouldGenerateV1() bool { return s == PreHorizon }

// ShouldGenerateV2 reports whether this strategy produces v2 receipts.
func (s Strategy) ShouldGenerateV2() bool { return s == PostHorizon }
