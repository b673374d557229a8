package predictor

import (
	"math"

	"SignalForge/internal/domain/models"
)

// model is an immutable logistic regression snapshot. Training produces a new
// model which is swapped in atomically; Predict never locks.
type model struct {
	weights []float64
	bias    float64
	means   []float64
	stddevs []float64
	samples int
}

const (
	trainEpochs       = 200
	trainLearningRate = 0.1
)

// fit trains a logistic regression on the given outcomes with batch gradient
// descent over standardized features. Skipped attempts carry HadError=false
// and train as non-errors, pulling the predicted probability back down after
// a stretch of avoidance.
func fit(history []models.OutcomeRecord) *model {
	n := len(history)
	if n == 0 {
		return nil
	}

	dim := len(models.FeatureNames)
	xs := make([][]float64, n)
	ys := make([]float64, n)
	for i, rec := range history {
		xs[i] = rec.Context.Features.Values()
		if rec.HadError {
			ys[i] = 1
		}
	}

	means, stddevs := standardize(xs, dim)

	m := &model{
		weights: make([]float64, dim),
		means:   means,
		stddevs: stddevs,
		samples: n,
	}

	grad := make([]float64, dim)
	for epoch := 0; epoch < trainEpochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		biasGrad := 0.0

		for i, x := range xs {
			p := m.score(x)
			diff := p - ys[i]
			for j := range grad {
				grad[j] += diff * x[j]
			}
			biasGrad += diff
		}

		scale := trainLearningRate / float64(n)
		for j := range m.weights {
			m.weights[j] -= scale * grad[j]
		}
		m.bias -= scale * biasGrad
	}

	return m
}

// predict returns the error probability for a feature vector.
func (m *model) predict(fv models.FeatureVector) float64 {
	x := fv.Values()
	std := make([]float64, len(x))
	for j, v := range x {
		std[j] = (v - m.means[j]) / m.stddevs[j]
	}
	return m.score(std)
}

// score expects an already standardized feature vector.
func (m *model) score(x []float64) float64 {
	z := m.bias
	for j, w := range m.weights {
		z += w * x[j]
	}
	return sigmoid(z)
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// standardize computes per-feature mean and stddev, mutating xs in place to
// standardized values and returning the parameters for inference time.
func standardize(xs [][]float64, dim int) (means, stddevs []float64) {
	means = make([]float64, dim)
	stddevs = make([]float64, dim)
	n := float64(len(xs))

	for _, x := range xs {
		for j, v := range x {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= n
	}

	for _, x := range xs {
		for j, v := range x {
			d := v - means[j]
			stddevs[j] += d * d
		}
	}
	for j := range stddevs {
		stddevs[j] = math.Sqrt(stddevs[j] / n)
		if stddevs[j] < 1e-9 {
			stddevs[j] = 1
		}
	}

	for _, x := range xs {
		for j := range x {
			x[j] = (x[j] - means[j]) / stddevs[j]
		}
	}
	return means, stddevs
}
