package store

import (
	"fmt"
	"math"
)

const (
	DistanceL2     = "l2"
	DistanceCosine = "cosine"
	DistanceIP     = "ip"
)

type distanceFunc func(a, b []float32) float64

func distanceFor(name string) (distanceFunc, error) {
	switch name {
	case "", DistanceL2:
		return squaredL2, nil
	case DistanceCosine:
		return cosineDistance, nil
	case DistanceIP:
		return innerProductDistance, nil
	}
	return nil, fmt.Errorf("unknown distance %q", name)
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func innerProductDistance(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return 1 - dot
}

// cosineDistance is 1 - cos(a, b); a zero vector is at distance 1 from everything.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
