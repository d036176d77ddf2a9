package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"trajrisk/internal/dataset"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	coxDefaultMaxIter = 50
	coxTolerance      = 1e-9
	coxMaxHalvings    = 30
	// minScale is the standard deviation below which a covariate is left
	// unscaled.
	minScale = 1e-12
)

// NormStat holds the training mean and standard deviation of a covariate.
type NormStat struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// CoxModel is a fitted proportional hazards model. Coefficients apply to
// standardized covariates.
type CoxModel struct {
	Coefficients map[string]float64  `json:"coefficients"`
	Norm         map[string]NormStat `json:"norm"`
}

// Family implements RiskModel.
func (m *CoxModel) Family() string { return FamilyCox }

// Score returns the partial hazard exp(sum beta_j * z_j) for every row.
// Columns without a coefficient are ignored.
func (m *CoxModel) Score(_ context.Context, X *dataset.Table) ([]float64, error) {
	scores := make([]float64, X.Len())
	for i, row := range X.Rows {
		var linear float64
		for j, name := range X.Columns {
			beta, ok := m.Coefficients[name]
			if !ok {
				continue
			}
			linear += beta * m.standardize(name, row[j])
		}
		scores[i] = math.Exp(linear)
	}
	return scores, nil
}

func (m *CoxModel) standardize(name string, x float64) float64 {
	ns, ok := m.Norm[name]
	if !ok || ns.Std <= minScale {
		return x
	}
	return (x - ns.Mean) / ns.Std
}

// State implements RiskModel.
func (m *CoxModel) State() (json.RawMessage, error) {
	return json.Marshal(m)
}

// CoxFamily fits Cox proportional hazards models by Newton-Raphson on the
// Breslow partial likelihood.
type CoxFamily struct {
	// Penalizer is the L2 penalty on the standardized coefficients.
	Penalizer float64
	MaxIter   int
}

// Name implements Family.
func (f *CoxFamily) Name() string { return FamilyCox }

// Decode implements Family.
func (f *CoxFamily) Decode(state json.RawMessage) (RiskModel, error) {
	var m CoxModel
	if err := json.Unmarshal(state, &m); err != nil {
		return nil, fmt.Errorf("%w: cox state: %v", ErrModelLoad, err)
	}
	if len(m.Coefficients) == 0 {
		return nil, fmt.Errorf("%w: cox state has no coefficients", ErrModelLoad)
	}
	return &m, nil
}

// Fit implements Family.
func (f *CoxFamily) Fit(ctx context.Context, X *dataset.Table, y []dataset.Outcome) (RiskModel, error) {
	n, p := X.Len(), len(X.Columns)
	if n != len(y) {
		return nil, fmt.Errorf("%w: %d rows but %d outcomes", ErrFit, n, len(y))
	}
	if p == 0 {
		return nil, fmt.Errorf("%w: no feature columns", ErrFit)
	}
	events := 0
	for _, o := range y {
		if o.Event {
			events++
		}
	}
	if events == 0 {
		return nil, fmt.Errorf("%w: no observed events among %d rows", ErrFit, n)
	}

	norm := make(map[string]NormStat, p)
	z := mat.NewDense(n, p, nil)
	for j, name := range X.Columns {
		col, _ := X.Column(name)
		mean, std := stat.MeanStdDev(col, nil)
		if n < 2 {
			std = 0
		}
		norm[name] = NormStat{Mean: mean, Std: std}
		for i, v := range col {
			if std > minScale {
				v = (v - mean) / std
			}
			z.Set(i, j, v)
		}
	}

	// descending time; groups of tied times share one risk set
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return y[order[a]].Time > y[order[b]].Time
	})

	maxIter := f.MaxIter
	if maxIter <= 0 {
		maxIter = coxDefaultMaxIter
	}

	beta := mat.NewVecDense(p, nil)
	ll, grad, info := f.partialLikelihood(z, y, order, beta)

	converged := false
	iter := 0
	for ; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(info); !ok {
			return nil, fmt.Errorf("%w: information matrix is singular at iteration %d", ErrFit, iter)
		}
		delta := mat.NewVecDense(p, nil)
		if err := chol.SolveVecTo(delta, grad); err != nil {
			return nil, fmt.Errorf("%w: newton step: %v", ErrFit, err)
		}

		step := 1.0
		var next *mat.VecDense
		var nextLL float64
		var nextGrad *mat.VecDense
		var nextInfo *mat.SymDense
		for h := 0; h < coxMaxHalvings; h++ {
			next = mat.NewVecDense(p, nil)
			next.AddScaledVec(beta, step, delta)
			nextLL, nextGrad, nextInfo = f.partialLikelihood(z, y, order, next)
			if !math.IsNaN(nextLL) && nextLL >= ll-1e-12 {
				break
			}
			step /= 2
		}

		maxChange := 0.0
		for j := 0; j < p; j++ {
			maxChange = math.Max(maxChange, math.Abs(next.AtVec(j)-beta.AtVec(j)))
		}
		beta, ll, grad, info = next, nextLL, nextGrad, nextInfo
		if maxChange < coxTolerance {
			converged = true
			iter++
			break
		}
	}

	if !converged {
		log.Warn().Int("iterations", iter).Msg("Cox fit did not converge, using last estimate")
	}
	log.Debug().
		Int("iterations", iter).
		Float64("log_likelihood", ll).
		Int("events", events).
		Msg("Cox model fitted")

	coeffs := make(map[string]float64, p)
	for j, name := range X.Columns {
		coeffs[name] = beta.AtVec(j)
	}
	return &CoxModel{Coefficients: coeffs, Norm: norm}, nil
}

// partialLikelihood returns the penalized Breslow log partial likelihood, its
// gradient and the observed information matrix at beta.
func (f *CoxFamily) partialLikelihood(z *mat.Dense, y []dataset.Outcome, order []int, beta *mat.VecDense) (float64, *mat.VecDense, *mat.SymDense) {
	n, p := z.Dims()

	eta := make([]float64, n)
	shift := math.Inf(-1)
	for i := 0; i < n; i++ {
		eta[i] = mat.Dot(z.RowView(i), beta)
		shift = math.Max(shift, eta[i])
	}

	var ll float64
	grad := mat.NewVecDense(p, nil)
	info := mat.NewSymDense(p, nil)

	var s0 float64
	s1 := make([]float64, p)
	s2 := make([]float64, p*p)

	for start := 0; start < n; {
		end := start
		for end < n && y[order[end]].Time == y[order[start]].Time {
			end++
		}

		for _, i := range order[start:end] {
			w := math.Exp(eta[i] - shift)
			s0 += w
			for a := 0; a < p; a++ {
				za := z.At(i, a)
				s1[a] += w * za
				for b := 0; b <= a; b++ {
					s2[a*p+b] += w * za * z.At(i, b)
				}
			}
		}

		logS0 := math.Log(s0) + shift
		for _, i := range order[start:end] {
			if !y[i].Event {
				continue
			}
			ll += eta[i] - logS0
			for a := 0; a < p; a++ {
				ma := s1[a] / s0
				grad.SetVec(a, grad.AtVec(a)+z.At(i, a)-ma)
				for b := 0; b <= a; b++ {
					v := s2[a*p+b]/s0 - ma*s1[b]/s0
					info.SetSym(a, b, info.At(a, b)+v)
				}
			}
		}
		start = end
	}

	if f.Penalizer > 0 {
		for a := 0; a < p; a++ {
			b := beta.AtVec(a)
			ll -= 0.5 * f.Penalizer * b * b
			grad.SetVec(a, grad.AtVec(a)-f.Penalizer*b)
			info.SetSym(a, a, info.At(a, a)+f.Penalizer)
		}
	}

	return ll, grad, info
}
