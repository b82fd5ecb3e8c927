package model

import "fmt"

// Tier is the user class governing allowed submission duration and
// scheduling priority. It is a closed string-kind type, validated at
// construction the way the teacher's Status type is.
type Tier string

const (
	TierDemo     Tier = "demo"
	TierLabel    Tier = "label"
	TierArtist   Tier = "artist"
	TierOpenMic  Tier = "open_mic"
	TierIndustry Tier = "industry"
)

// tierWeights drives priority-fetch ordering: higher weight wins ties.
var tierWeights = map[Tier]int{
	TierDemo:     5,
	TierLabel:    4,
	TierArtist:   3,
	TierOpenMic:  2,
	TierIndustry: 1,
}

// ParseTier validates a raw string against the closed set of tiers.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if _, ok := tierWeights[t]; !ok {
		return "", fmt.Errorf("invalid tier %q", s)
	}
	return t, nil
}

// Weight returns the scheduling priority weight for the tier; unknown
// tiers (which should never occur past ParseTier) weight lowest.
func (t Tier) Weight() int {
	if w, ok := tierWeights[t]; ok {
		return w
	}
	return 0
}

// RequiresAnalysisGate reports whether the scheduler must wait for
// analysis_status=ANALYZED before dispatching a job of this tier.
func (t Tier) RequiresAnalysisGate() bool {
	return t == TierDemo || t == TierIndustry
}

// MaxSubmissionSeconds returns the tier's maximum accepted source duration.
// Tiers other than demo and industry are bound by the manual-clip ceiling
// of a single chunk (9s); see RunLegacySingleChunk for that path.
func (t Tier) MaxSubmissionSeconds() float64 {
	switch t {
	case TierDemo:
		return 20.0
	case TierIndustry:
		return 90.0
	default:
		return ManualClipLimitSeconds
	}
}

// ManualClipLimitSeconds is the maximum duration accepted from tiers that
// are not gated by the chunked analyzer (label, artist, open_mic).
const ManualClipLimitSeconds = 9.0
