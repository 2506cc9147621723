package prediction

// defaultConfidence is used when the classifier cannot report class probabilities.
const defaultConfidence = 0.85

// RuleBased classifies with the fixed threshold table. The first matching
// row wins.
func RuleBased(f FeatureVector) Decision {
	d := Decision{Source: SourceRule}

	switch {
	case f.SoilMoisture < 30:
		d.PredictedClass, d.Confidence = 1, 0.90
	case f.SoilMoisture < 40 && f.Temperature > 25:
		d.PredictedClass, d.Confidence = 1, 0.75
	case f.SoilMoisture < 50 && f.Temperature > 30 && f.Humidity < 40:
		d.PredictedClass, d.Confidence = 1, 0.70
	default:
		d.PredictedClass, d.Confidence = 0, 0.85
	}

	return d
}
