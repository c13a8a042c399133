package reliability

import (
	"errors"
	"fmt"
	"math"
)

// ErrInsufficientData is returned when a regression has too few points or
// no variance in the market line.
var ErrInsufficientData = errors.New("reliability: insufficient data")

// Residualizer is an OLS fit of feature = Intercept + Slope*line over
// historical market lines. The residual is the part of a feature the market
// has not already priced in.
type Residualizer struct {
	Intercept float64
	Slope     float64
	N         int
	R2        float64
}

// FitResidualizer regresses features on lines.
func FitResidualizer(features, lines []float64) (*Residualizer, error) {
	if len(features) != len(lines) {
		return nil, fmt.Errorf("length mismatch: %d features, %d lines", len(features), len(lines))
	}
	n := len(features)
	if n < 2 {
		return nil, fmt.Errorf("%w: %d points", ErrInsufficientData, n)
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		if !isFinite(features[i]) || !isFinite(lines[i]) {
			return nil, fmt.Errorf("non-finite value at index %d", i)
		}
		sumX += lines[i]
		sumY += features[i]
	}
	meanX, meanY := sumX/float64(n), sumY/float64(n)

	var sxx, sxy, syy float64
	for i := 0; i < n; i++ {
		dx, dy := lines[i]-meanX, features[i]-meanY
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx == 0 {
		return nil, fmt.Errorf("%w: lines have zero variance", ErrInsufficientData)
	}

	r := &Residualizer{N: n}
	r.Slope = sxy / sxx
	r.Intercept = meanY - r.Slope*meanX
	if syy > 0 {
		r.R2 = (sxy * sxy) / (sxx * syy)
	}
	return r, nil
}

// Predict returns the feature value the market line alone explains.
func (r *Residualizer) Predict(line float64) float64 {
	return r.Intercept + r.Slope*line
}

// Residual returns feature minus the part explained by line.
func (r *Residualizer) Residual(feature, line float64) float64 {
	return feature - r.Predict(line)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
