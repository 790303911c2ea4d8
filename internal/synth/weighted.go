package synth

import "math/rand"

type weighted[T any] struct {
	value  T
	weight float64
}

func pick[T any](rng *rand.Rand, choices []weighted[T]) T {
	var total float64
	for _, c := range choices {
		total += c.weight
	}
	r := rng.Float64() * total
	for _, c := range choices {
		if r < c.weight {
			return c.value
		}
		r -= c.weight
	}
	return choices[len(choices)-1].value
}

func uniform(rng *rand.Rand, low, high float64) float64 {
	return low + rng.Float64()*(high-low)
}

// between returns an int in [low, high].
func between(rng *rand.Rand, low, high int) int {
	if high <= low {
		return low
	}
	return low + rng.Intn(high-low+1)
}
