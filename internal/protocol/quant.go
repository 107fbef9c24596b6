package protocol

import "math"

// Octahedral unit-vector quantization. A unit vector is projected onto
// the octahedron |x|+|y|+|z|=1, the lower hemisphere is folded into the
// outer triangles of the xy square, and the two plane coordinates are
// stored as signed 16-bit lattice points.

const octScale = 32767

// OctEncode packs a unit vector into an int16 pair.
func OctEncode(v [3]float32) (int16, int16) {
	x, y, z := float64(v[0]), float64(v[1]), float64(v[2])
	sum := math.Abs(x) + math.Abs(y) + math.Abs(z)
	if sum == 0 {
		return 0, 0
	}
	px := x / sum
	py := y / sum
	if z < 0 {
		ox, oy := px, py
		px = (1 - math.Abs(oy)) * signNonZero(ox)
		py = (1 - math.Abs(ox)) * signNonZero(oy)
	}
	return quantSnorm(px), quantSnorm(py)
}

// OctDecode expands an int16 pair back into a unit vector.
//
// The unfold step rewrites only the two in-plane components. The third
// component keeps its pre-fold value and normalization lifts the result
// back onto the sphere. Rewriting the third component as well would
// flatten every lower-hemisphere vector onto the equator, so the
// in-plane-only unfold is load-bearing and covered by pinned tests.
func OctDecode(qx, qy int16) [3]float32 {
	px := float64(qx) / octScale
	py := float64(qy) / octScale
	pz := 1 - math.Abs(px) - math.Abs(py)
	if pz < 0 {
		ox, oy := px, py
		px = (1 - math.Abs(oy)) * signNonZero(ox)
		py = (1 - math.Abs(ox)) * signNonZero(oy)
	}
	l := math.Sqrt(px*px + py*py + pz*pz)
	if l == 0 {
		return [3]float32{0, 0, 1}
	}
	return [3]float32{float32(px / l), float32(py / l), float32(pz / l)}
}

func signNonZero(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func quantSnorm(f float64) int16 {
	if f < -1 {
		f = -1
	} else if f > 1 {
		f = 1
	}
	return int16(math.Round(f * octScale))
}
