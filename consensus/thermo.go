package consensus

import "github.com/judgenet/node/internal/phi"

// Thermo tracks the cognitive-thermodynamic signals (heat, work,
// entropy). These are advisory only — they never alter a consensus
// decision; they drive recommendations surfaced through the
// orchestrator to the application.
type Thermo struct {
	Heat    float64
	Work    float64
	Entropy float64
}

// criticalHeatThreshold is φ × 50, the heat level considered critical.
var criticalHeatThreshold = phi.Phi * 50

// Efficiency returns η = Work/(Work+Heat), capped at the Carnot bound
// φ⁻¹. The raw ratio is at most 1 and exceeds φ⁻¹ whenever Work is
// large relative to Heat, so the cap is applied as an explicit clamp
// on the computed ratio.
func (t Thermo) Efficiency() float64 {
	if t.Work+t.Heat <= 0 {
		return 0
	}
	eta := t.Work / (t.Work + t.Heat)
	if eta > phi.Inverse {
		return phi.Inverse
	}
	return eta
}

// Critical reports whether heat has crossed φ × 50.
func (t Thermo) Critical() bool {
	return t.Heat > criticalHeatThreshold
}

// LowEfficiency reports whether η has fallen below φ⁻².
func (t Thermo) LowEfficiency() bool {
	return t.Efficiency() < phi.InverseSquare
}

// Observe folds in a new sample, accumulating heat/work/entropy. The
// caller decides the units; consensus only interprets the ratios.
func (t *Thermo) Observe(heat, work, entropy float64) {
	t.Heat += heat
	t.Work += work
	t.Entropy += entropy
}
