package budget

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Estimator approximates token counts before a model call. All providers are
// approximated with the GPT-4 (cl100k) encoding.
type Estimator struct {
	codec tokenizer.Codec
}

//nolint:gochecknoglobals // codec tables are loaded once per process
var (
	defaultEstimator     *Estimator
	defaultEstimatorOnce sync.Once
)

// NewEstimator loads the cl100k codec. If loading fails the estimator falls
// back to four characters per token.
func NewEstimator() *Estimator {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return &Estimator{}
	}
	return &Estimator{codec: codec}
}

// DefaultEstimator returns a shared estimator.
func DefaultEstimator() *Estimator {
	defaultEstimatorOnce.Do(func() {
		defaultEstimator = NewEstimator()
	})
	return defaultEstimator
}

// Count returns the number of tokens in text.
func (e *Estimator) Count(text string) int {
	if e == nil || e.codec == nil {
		return fallbackCount(text)
	}
	count, err := e.codec.Count(text)
	if err != nil {
		return fallbackCount(text)
	}
	return count
}

// CountAll sums Count over several texts.
func (e *Estimator) CountAll(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += e.Count(t)
	}
	return total
}

func fallbackCount(text string) int {
	return (len(text) + 3) / 4
}
