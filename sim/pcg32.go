package sim

import "math"

// pcg32 is the PCG-XSH-RR generator: 64-bit LCG state, 32-bit output.
type pcg32 struct {
	state uint64
	inc   uint64
}

const (
	pcgMultiplier = 6364136223846793005
	invUint32     = 1.0 / 4294967296.0
)

func (r *pcg32) seed(seed, stream uint64) {
	r.state = 0
	r.inc = (stream << 1) | 1
	r.nextUint()
	r.state += seed
	r.nextUint()
}

func (r *pcg32) nextUint() uint32 {
	old := r.state
	r.state = old*pcgMultiplier + r.inc
	xorshifted := uint32(((old >> 18) ^ old) >> 27)
	rot := uint32(old >> 59)
	return (xorshifted >> rot) | (xorshifted << ((32 - rot) & 31))
}

// uniform maps the next output into (0, 1) with 32-bit precision.
func (r *pcg32) uniform() float64 {
	return (float64(r.nextUint()) + 0.5) * invUint32
}

// PCG is the RNG implementation used by every simulator instance; the
// stream index keeps instances decorrelated under a shared seed.
type PCG struct {
	rng pcg32
}

func NewPCG(seed, stream uint64) *PCG {
	p := &PCG{}
	p.rng.seed(seed, stream)
	return p
}

func (p *PCG) Seed(seed, stream uint64) { p.rng.seed(seed, stream) }

func (p *PCG) StandardUniform() float64 { return p.rng.uniform() }

func (p *PCG) StandardNormal() float64 {
	return inverseNormalCDF(p.rng.uniform())
}

func (p *PCG) Exponential(lambda float64) float64 {
	return -math.Log(1.0-p.rng.uniform()) / lambda
}

func (p *PCG) Bernoulli(prob float64) bool {
	return p.rng.uniform() < prob
}

func (p *PCG) UniformInt(lo, hi uint32) uint32 {
	if hi <= lo {
		return lo
	}
	span := hi - lo + 1
	return lo + p.rng.nextUint()%span
}

func (p *PCG) Poisson(mean float64) uint32 {
	if mean <= 0 {
		return 0
	}
	if mean < 30 {
		// Knuth's multiplication method.
		limit := math.Exp(-mean)
		k := uint32(0)
		prod := p.rng.uniform()
		for prod > limit {
			k++
			prod *= p.rng.uniform()
		}
		return k
	}
	// Normal approximation for large means.
	draw := mean + math.Sqrt(mean)*p.StandardNormal()
	if draw < 0 {
		return 0
	}
	return uint32(math.Round(draw))
}

func (p *PCG) Categorical(cumulativeProbs []float64) int {
	// Linear scan; the category count is small.
	u := p.rng.uniform()
	for i, c := range cumulativeProbs {
		if u < c {
			return i
		}
	}
	return len(cumulativeProbs) - 1
}

func (p *PCG) NormalVector(out []float64) {
	for i := range out {
		out[i] = p.StandardNormal()
	}
}
