package opt

import "math/rand"

// Operator is the adaptive state of one destroy or repair operator.
type Operator struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Score  float64 `json:"score"`
	Uses   int     `json:"uses"`
}

// Catalog is a fixed set of operators indexed by their enum value.
type Catalog struct {
	ops []Operator
}

func newCatalog(names []string) *Catalog {
	c := &Catalog{ops: make([]Operator, len(names))}
	for i, n := range names {
		c.ops[i] = Operator{Name: n, Weight: 1 / float64(len(names))}
	}
	return c
}

// Operators returns a copy of the operator records.
func (c *Catalog) Operators() []Operator {
	return append([]Operator(nil), c.ops...)
}

func (c *Catalog) Weights() []float64 {
	w := make([]float64, len(c.ops))
	for i, op := range c.ops {
		w[i] = op.Weight
	}
	return w
}

func (c *Catalog) Name(i int) string { return c.ops[i].Name }

// choose draws an operator with probability proportional to its weight,
// restricted to allowed when it is non-empty.
func (c *Catalog) choose(rng *rand.Rand, allowed []int) int {
	if len(allowed) == 0 {
		return selectOp(c.Weights(), rng)
	}
	w := make([]float64, len(allowed))
	for i, idx := range allowed {
		w[i] = c.ops[idx].Weight
	}
	return allowed[selectOp(w, rng)]
}

// reward counts one use of operator i and credits it with score.
func (c *Catalog) reward(i int, score float64) {
	c.ops[i].Score += score
	c.ops[i].Uses++
}

// UpdateWeights blends each used operator's average score into its weight,
// w = w(1-rho) + rho*score/uses, and starts a new segment.
func (c *Catalog) UpdateWeights(rho float64) {
	for i := range c.ops {
		op := &c.ops[i]
		if op.Uses > 0 {
			op.Weight = op.Weight*(1-rho) + rho*op.Score/float64(op.Uses)
		}
		op.Score = 0
		op.Uses = 0
	}
}

// selectOp is a roulette wheel draw over weights.
func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
