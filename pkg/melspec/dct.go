package melspec

import "math"

// dctMatrix builds an orthonormal DCT-II basis of shape [numCoeffs][n].
func dctMatrix(numCoeffs, n int) [][]float64 {
	m := make([][]float64, numCoeffs)
	for k := range m {
		row := make([]float64, n)
		scale := math.Sqrt(2.0 / float64(n))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(n))
		}
		for i := 0; i < n; i++ {
			row[i] = scale * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n)))
		}
		m[k] = row
	}
	return m
}
