// internal/rating/glicko2.go
package rating

import "math"

const (
	// GlickoScale converts between the Elo scale and the Glicko-2 internal scale.
	GlickoScale = 173.7178
	// DefaultMu is the Elo given to an unrated player.
	DefaultMu = 1500.0
	// DefaultPhi is the rating deviation of an unrated player on the Elo scale.
	DefaultPhi = 350.0
	// DefaultSigma is the starting volatility.
	DefaultSigma = 0.06
	// Tau limits how fast volatility moves.
	Tau = 0.5
	// Epsilon is the convergence tolerance of the volatility solver.
	Epsilon = 0.000001

	maxSolverSteps = 100
)

// Glicko2Rating is a rating on the internal Glicko-2 scale.
type Glicko2Rating struct {
	Mu    float64
	Phi   float64
	Sigma float64
}

// NewGlicko2Rating converts an Elo-scale rating. Zero or negative inputs fall
// back to the unrated defaults.
func NewGlicko2Rating(elo, rd, sigma float64) Glicko2Rating {
	if elo == 0 {
		elo = DefaultMu
	}
	if rd <= 0 {
		rd = DefaultPhi
	}
	if sigma <= 0 {
		sigma = DefaultSigma
	}
	return Glicko2Rating{
		Mu:    (elo - DefaultMu) / GlickoScale,
		Phi:   rd / GlickoScale,
		Sigma: sigma,
	}
}

// ToElo is Mu on the Elo scale.
func (r Glicko2Rating) ToElo() float64 {
	return r.Mu*GlickoScale + DefaultMu
}

// RD is the rating deviation on the Elo scale.
func (r Glicko2Rating) RD() float64 {
	return r.Phi * GlickoScale
}

// impact dampens an opponent's influence by their uncertainty.
func impact(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

// expectedScore of a player rated mu against an opponent rated oppMu, oppPhi.
func expectedScore(mu, oppMu, oppPhi float64) float64 {
	return 1 / (1 + math.Exp(-impact(oppPhi)*(mu-oppMu)))
}

// updateGlicko rates a single game of r against opp. score is r's result in [0, 1].
func updateGlicko(r, opp Glicko2Rating, score float64) Glicko2Rating {
	gOpp := impact(opp.Phi)
	e := expectedScore(r.Mu, opp.Mu, opp.Phi)

	variance := 1 / (gOpp * gOpp * e * (1 - e))
	improvement := variance * gOpp * (score - e)

	sigma := solveVolatility(r.Phi, r.Sigma, variance, improvement)

	preRD := math.Sqrt(r.Phi*r.Phi + sigma*sigma)
	phi := 1 / math.Sqrt(1/(preRD*preRD)+1/variance)
	return Glicko2Rating{
		Mu:    r.Mu + phi*phi*gOpp*(score-e),
		Phi:   phi,
		Sigma: sigma,
	}
}

// solveVolatility finds the new volatility with the Illinois variant of
// regula falsi (Glickman, step 5).
func solveVolatility(phi, sigma, variance, improvement float64) float64 {
	a := math.Log(sigma * sigma)
	d2, p2 := improvement*improvement, phi*phi
	fn := func(x float64) float64 {
		ex := math.Exp(x)
		den := p2 + variance + ex
		return ex*(d2-p2-variance-ex)/(2*den*den) - (x-a)/(Tau*Tau)
	}

	lo := a
	var hi float64
	if d2 > p2+variance {
		hi = math.Log(d2 - p2 - variance)
	} else {
		k := 1.0
		for fn(a-k*Tau) < 0 {
			k++
		}
		hi = a - k*Tau
	}

	fLo, fHi := fn(lo), fn(hi)
	for i := 0; i < maxSolverSteps && math.Abs(hi-lo) > Epsilon; i++ {
		mid := lo + (lo-hi)*fLo/(fHi-fLo)
		fMid := fn(mid)
		if fMid*fHi <= 0 {
			lo, fLo = hi, fHi
		} else {
			fLo /= 2
		}
		hi, fHi = mid, fMid
	}
	return math.Exp(lo / 2)
}
