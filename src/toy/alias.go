package toy

import (
	"math/rand/v2"

	"github.com/pkg/errors"
)

// aliasTable samples an index with probability proportional to its weight
// in constant time (Vose's alias method).
type aliasTable struct {
	prob  []float64
	alias []int
}

func newAliasTable(weights []float64) (*aliasTable, error) {
	n := len(weights)
	if n == 0 {
		return nil, errors.New("no weights")
	}
	var sum float64
	for _, w := range weights {
		if w < 0 {
			return nil, errors.Errorf("negative weight %g", w)
		}
		sum += w
	}
	if sum <= 0 {
		return nil, errors.New("weights sum to zero")
	}

	t := &aliasTable{prob: make([]float64, n), alias: make([]int, n)}
	scaled := make([]float64, n)
	small := make([]int, 0, n)
	large := make([]int, 0, n)
	for i, w := range weights {
		scaled[i] = w * float64(n) / sum
		if scaled[i] < 1 {
			small = append(small, i)
		} else {
			large = append(large, i)
		}
	}
	for len(small) > 0 && len(large) > 0 {
		s := small[len(small)-1]
		small = small[:len(small)-1]
		l := large[len(large)-1]
		large = large[:len(large)-1]

		t.prob[s] = scaled[s]
		t.alias[s] = l
		scaled[l] -= 1 - scaled[s]
		if scaled[l] < 1 {
			small = append(small, l)
		} else {
			large = append(large, l)
		}
	}
	// leftovers are 1 up to rounding
	for _, i := range large {
		t.prob[i] = 1
	}
	for _, i := range small {
		t.prob[i] = 1
	}
	return t, nil
}

func (t *aliasTable) sample(rng *rand.Rand) int {
	i := rng.IntN(len(t.prob))
	if rng.Float64() < t.prob[i] {
		return i
	}
	return t.alias[i]
}
