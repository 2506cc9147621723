package prediction

// Source tells which path produced a Decision.
type Source string

const (
	SourceModel Source = "MODEL"
	SourceRule  Source = "RULE"
)

// FeatureVector holds the five inputs to the irrigation classifier.
// Callers are expected to validate ranges before building one.
type FeatureVector struct {
	SoilMoisture    float64  `json:"soil_moisture"`
	Temperature     float64  `json:"temperature"`
	Humidity        float64  `json:"humidity"`
	RainSensor      int      `json:"rain_sensor"`
	RainProbability *float64 `json:"rain_probability,omitempty"` // nil is treated as 0
}

// Values returns the vector in the order the trained artifacts expect.
func (f FeatureVector) Values() []float64 {
	rain := 0.0
	if f.RainProbability != nil {
		rain = *f.RainProbability
	}
	return []float64{
		f.SoilMoisture,
		f.Temperature,
		f.Humidity,
		float64(f.RainSensor),
		rain,
	}
}

// Decision is the outcome of a single Predict call.
type Decision struct {
	PredictedClass int     `json:"predicted_class"`
	Confidence     float64 `json:"confidence"`
	Source         Source  `json:"source"`
}

// featureCount is the width of every vector passed to the scaler and classifier.
const featureCount = 5
