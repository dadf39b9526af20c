package effects

// easeInOutCubic reshapes linear progress so the move starts and ends softly.
func easeInOutCubic(p float64) float64 {
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return 1
	}
	if p < 0.5 {
		return 4 * p * p * p
	}
	return 1 - pow(-2*p+2, 3)/2
}

func pow(x float64, n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= x
	}
	return result
}
