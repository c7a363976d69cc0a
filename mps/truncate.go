package mps

import (
	"math"

	"github.com/corvid-lab/dmrg/linalg"
	"github.com/fumin/tensor"
)

// TruncateRight decomposes site i via SVD, caps the right bond at maxD
// singular values, installs the retained left singular vectors as the new
// T_i, and folds S·V^H into T_{i+1}. It returns the entanglement entropy
// across the i,i+1 cut and the retained normalized entanglement spectrum
// {s_k^2}, both computed from the (unit-2-norm-normalized) kept singular
// values.
// See spec.md section 4.5, "Truncation & entanglement".
func TruncateRight(ms State, i, maxD int, bufs [4]*tensor.Dense) (float32, []float32) {
	s := ms[i].Shape()
	dLeft, dUp, dRight := s[LeftAxis], s[UpAxis], s[RightAxis]

	a := bufs[0].Reset(dLeft*dUp, dRight)
	a.Set([]int{0, 0}, ms[i].Reshape(dLeft*dUp, dRight))

	u, v := bufs[1], bufs[2]
	if err := linalg.SVD(a, u, v, bufs[3:4]); err != nil {
		panic(err)
	}
	keep := min(maxD, u.Shape()[1])
	entropy, spectrum := entanglementSpectrum(a, keep)

	uTrunc := u.Slice([][2]int{{0, dLeft * dUp}, {0, keep}})
	ms[i] = resetCopy(ms[i], uTrunc).Reshape(dLeft, dUp, keep)

	sTrunc := a.Slice([][2]int{{0, keep}, {0, keep}})
	vTruncH := v.Slice([][2]int{{0, dRight}, {0, keep}}).H()
	sv := tensor.MatMul(tensor.Zeros(keep, dRight), sTrunc, vTruncH)

	axes := [][2]int{{1, LeftAxis}}
	resetCopy(ms[i+1], tensor.Product(bufs[1], sv, ms[i+1], axes))

	return entropy, spectrum
}

// TruncateLeft is the mirror of TruncateRight: it caps the left bond of site
// i, installs the retained right singular vectors as the new, right-
// normalized T_i, and folds U·S into T_{i-1}.
func TruncateLeft(ms State, i, maxD int, bufs [4]*tensor.Dense) (float32, []float32) {
	s := ms[i].Shape()
	dLeft, dUp, dRight := s[LeftAxis], s[UpAxis], s[RightAxis]

	a := bufs[0].Reset(dLeft, dUp*dRight)
	a.Set([]int{0, 0}, ms[i].Reshape(dLeft, dUp*dRight))

	u, v := bufs[1], bufs[2]
	if err := linalg.SVD(a, u, v, bufs[3:4]); err != nil {
		panic(err)
	}
	keep := min(maxD, v.Shape()[1])
	entropy, spectrum := entanglementSpectrum(a, keep)

	vTruncH := v.Slice([][2]int{{0, dUp * dRight}, {0, keep}}).H()
	ms[i] = resetCopy(ms[i], vTruncH).Reshape(keep, dUp, dRight)

	uTrunc := u.Slice([][2]int{{0, dLeft}, {0, keep}})
	sTrunc := a.Slice([][2]int{{0, keep}, {0, keep}})
	us := tensor.MatMul(tensor.Zeros(dLeft, keep), uTrunc, sTrunc)

	axes := [][2]int{{RightAxis, 0}}
	resetCopy(ms[i-1], tensor.Product(bufs[1], ms[i-1], us, axes))

	return entropy, spectrum
}

// entanglementSpectrum returns the Von Neumann entanglement entropy
// S = -sum p_k log2(p_k) and the retained probabilities p_k = s_k^2 /
// sum(s_j^2) for the top `keep` diagonal entries of the (already sorted
// descending) singular-value matrix a.
// See spec.md section 4.5, "Truncation & entanglement".
func entanglementSpectrum(a *tensor.Dense, keep int) (float32, []float32) {
	sq := make([]float32, keep)
	var sum float32
	for j := 0; j < keep; j++ {
		sigma := abs(a.At(j, j))
		sq[j] = sigma * sigma
		sum += sq[j]
	}
	if sum < epsilon {
		return 0, sq
	}
	var entropy float32
	for j := range sq {
		sq[j] /= sum
		if sq[j] > epsilon {
			entropy -= sq[j] * float32(math.Log2(float64(sq[j])))
		}
	}
	return entropy, sq
}
