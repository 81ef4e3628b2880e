// Package phi holds the golden-ratio constants shared by the leader
// schedule, the consensus threshold, and the E-Score weights.
package phi

import "math"

// Phi is the golden ratio, used as the consensus supermajority threshold
// is its inverse.
const Phi = 1.6180339887498948482045868343656381177203091798057628621354486227

// Inverse is φ⁻¹ ≈ 0.618, the weighted-approval threshold a block must
// cross to become Confirmed.
const Inverse = 1 / Phi

// InverseSquare is φ⁻² ≈ 0.382, the low-efficiency threshold for the
// cognitive-thermodynamic signal layer.
const InverseSquare = Inverse * Inverse

// Quorum returns the minimum weight (rounded up) that meets the φ⁻¹
// supermajority out of totalWeight.
func Quorum(totalWeight uint64) uint64 {
	return uint64(math.Ceil(float64(totalWeight) * Inverse))
}

// MeetsQuorum reports whether weight/totalWeight >= φ⁻¹.
func MeetsQuorum(weight, totalWeight uint64) bool {
	if totalWeight == 0 {
		return false
	}
	return float64(weight)/float64(totalWeight) >= Inverse
}
