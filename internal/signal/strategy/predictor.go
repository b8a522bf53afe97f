package strategy

import "math"

// Predictor is an opaque up/down model over a lookback window of normalised
// feature vectors. The return value is the probability of an upward move in
// [0, 1]. Model internals (training, weights) live outside this package; the
// reference implementations below are deterministic shells exercising the
// same input tensor shape as the production checkpoints.
type Predictor interface {
	Predict(window [][]float64) float64
}

// AttributingPredictor additionally reports the per-feature contribution to
// the score for the most recent input, which the classifier strategy turns
// into its explanation.
type AttributingPredictor interface {
	PredictWithAttribution(vec []float64) (prob float64, contributions []float64)
}

// ---------------------------------------------------------------------------
// Reference shells
// ---------------------------------------------------------------------------

// LinearClassifier scores a single feature vector with a fixed weight vector
// through a logistic link. It stands in for the gradient-boosted checkpoint:
// same vector in, same probability + additive attribution out.
type LinearClassifier struct {
	Weights []float64
	Bias    float64
}

// PredictWithAttribution returns sigmoid(w·x + b) and the additive
// per-feature terms w_i·x_i.
func (c *LinearClassifier) PredictWithAttribution(vec []float64) (float64, []float64) {
	contributions := make([]float64, len(vec))
	score := c.Bias
	for i, x := range vec {
		w := 0.0
		if i < len(c.Weights) {
			w = c.Weights[i]
		}
		contributions[i] = w * x
		score += contributions[i]
	}
	return sigmoid(score), contributions
}

// RecurrentScorer stands in for the LSTM/TFT checkpoints: a decayed weighted
// sum over the window rows through a logistic link. Later rows carry more
// weight, mimicking a recurrence that favours recent state.
type RecurrentScorer struct {
	Weights []float64
	// Decay in (0, 1]; row t gets weight Decay^(T-1-t).
	Decay float64
}

// Predict scores the window.
func (r *RecurrentScorer) Predict(window [][]float64) float64 {
	if len(window) == 0 {
		return 0.5
	}
	decay := r.Decay
	if decay <= 0 || decay > 1 {
		decay = 0.9
	}

	score := 0.0
	rowWeight := 1.0
	for t := len(window) - 1; t >= 0; t-- {
		row := window[t]
		for i, x := range row {
			w := 0.0
			if i < len(r.Weights) {
				w = r.Weights[i]
			}
			score += rowWeight * w * x
		}
		rowWeight *= decay
	}
	// Normalise by the geometric weight mass so window length does not shift
	// the operating point.
	mass := (1 - math.Pow(decay, float64(len(window)))) / (1 - decay)
	if decay == 1 {
		mass = float64(len(window))
	}
	return sigmoid(score / mass)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
