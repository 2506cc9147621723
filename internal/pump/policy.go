package pump

import "github.com/i474232898/smart-irrigation/internal/prediction"

// DefaultRainThreshold is the rain probability (percent) at or above which an
// irrigate verdict is held back.
const DefaultRainThreshold = 30.0

const (
	ReasonMoistureAdequate = "soil moisture adequate"
	ReasonRainExpected     = "hold — rain expected"
	ReasonRaining          = "hold — currently raining"
	ReasonIrrigate         = "irrigate — low moisture, low rain chance"
)

// Verdict is the override policy applied to a classifier decision.
type Verdict struct {
	ShouldIrrigate bool   `json:"should_irrigate"`
	Recommendation string `json:"recommendation"`
	Reason         string `json:"reason"`
}

// Override lets expected or ongoing rain veto an irrigate decision.
func Override(d prediction.Decision, rainProbability float64, rainSensor int, threshold float64) Verdict {
	switch {
	case d.PredictedClass == 0:
		return Verdict{Recommendation: "No irrigation needed", Reason: ReasonMoistureAdequate}
	case rainProbability >= threshold:
		return Verdict{Recommendation: "Hold irrigation - rain expected", Reason: ReasonRainExpected}
	case rainSensor != 0:
		return Verdict{Recommendation: "Hold irrigation - currently raining", Reason: ReasonRaining}
	default:
		return Verdict{ShouldIrrigate: true, Recommendation: "Irrigation recommended", Reason: ReasonIrrigate}
	}
}

// Action maps the verdict onto a pump state.
func (v Verdict) Action() State {
	if v.ShouldIrrigate {
		return StateOn
	}
	return StateOff
}
