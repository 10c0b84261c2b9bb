package domain

// Rating is an algorithm-neutral (mu, sigma) pair. Sigma = 0 is legal
// (e.g. Elo, which carries no uncertainty term).
type Rating struct {
	Mu    float64
	Sigma float64
}

// Score is the conservative rank-order value: mu - 3*sigma.
func (r Rating) Score() float64 { return r.Mu - 3*r.Sigma }
