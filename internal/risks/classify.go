package risks

import "github.com/angelmondragon/epiguard-backend/pkg/enums"

const (
	minScale = 1
	maxScale = 5
)

// Classify scores a hazard as probability x severity and buckets the score.
func Classify(probability, severity int) (int, enums.RiskClassification) {
	level := probability * severity
	switch {
	case level <= 4:
		return level, enums.RiskClassificationLow
	case level <= 8:
		return level, enums.RiskClassificationModerate
	case level <= 12:
		return level, enums.RiskClassificationMedium
	case level <= 18:
		return level, enums.RiskClassificationHigh
	default:
		return level, enums.RiskClassificationCritical
	}
}

func inScale(v int) bool {
	return v >= minScale && v <= maxScale
}
