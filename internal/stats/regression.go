package stats

import (
	"fmt"
	"math"

	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/series"
	"github.com/paveg/finwrangle/internal/validation"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// minObservations is the smallest sample that leaves a residual degree of
// freedom for a two-parameter fit.
const minObservations = 3

// Regression is an ordinary least squares fit of y = Alpha + Beta*x with
// standard errors and two-sided p-values from Student's t distribution.
type Regression struct {
	Alpha       float64
	Beta        float64
	StdErrAlpha float64
	StdErrBeta  float64
	TAlpha      float64
	TBeta       float64
	PAlpha      float64
	PBeta       float64
	RSquared    float64
	N           int
}

// String formats the fit the way the CLI prints it.
func (r Regression) String() string {
	return fmt.Sprintf("beta=%.4f (se %.4f, t %.2f, p %.4f) alpha=%.6f (se %.6f, t %.2f, p %.4f) r2=%.4f n=%d",
		r.Beta, r.StdErrBeta, r.TBeta, r.PBeta, r.Alpha, r.StdErrAlpha, r.TAlpha, r.PAlpha, r.RSquared, r.N)
}

func checkSample(op string, x, y []float64) error {
	if len(x) != len(y) {
		return errors.NewInvalidInputError(op, fmt.Sprintf("samples have different lengths %d and %d", len(x), len(y)))
	}
	if len(x) < minObservations {
		return errors.NewInvalidInputError(op, fmt.Sprintf("need at least %d observations, got %d", minObservations, len(x)))
	}
	return nil
}

// Correlation returns the Pearson correlation of x and y.
func Correlation(x, y []float64) (float64, error) {
	if err := checkSample("Correlation", x, y); err != nil {
		return 0, err
	}
	if stat.Variance(x, nil) == 0 || stat.Variance(y, nil) == 0 {
		return 0, errors.NewInvalidInputError("Correlation", "sample has zero variance")
	}
	return stat.Correlation(x, y, nil), nil
}

// Regress fits y against x.
func Regress(y, x []float64) (Regression, error) {
	if err := checkSample("Regress", x, y); err != nil {
		return Regression{}, err
	}

	n := float64(len(x))
	meanX := stat.Mean(x, nil)
	sxx := 0.0
	for _, v := range x {
		sxx += (v - meanX) * (v - meanX)
	}
	if sxx == 0 {
		return Regression{}, errors.NewInvalidInputError("Regress", "regressor has zero variance")
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	sse := 0.0
	for i := range x {
		resid := y[i] - (alpha + beta*x[i])
		sse += resid * resid
	}
	dof := n - 2
	s2 := sse / dof

	r := Regression{
		Alpha:       alpha,
		Beta:        beta,
		StdErrAlpha: math.Sqrt(s2 * (1/n + meanX*meanX/sxx)),
		StdErrBeta:  math.Sqrt(s2 / sxx),
		RSquared:    stat.RSquared(x, y, nil, alpha, beta),
		N:           len(x),
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}
	r.TAlpha, r.PAlpha = tTest(alpha, r.StdErrAlpha, dist)
	r.TBeta, r.PBeta = tTest(beta, r.StdErrBeta, dist)
	return r, nil
}

// tTest returns the t statistic of coef and its two-sided p-value. A zero
// standard error (an exact fit) gives an infinite t and p = 0 unless the
// coefficient is zero too.
func tTest(coef, stdErr float64, dist distuv.StudentsT) (float64, float64) {
	if stdErr == 0 {
		if coef == 0 {
			return math.NaN(), math.NaN()
		}
		return math.Copysign(math.Inf(1), coef), 0
	}
	t := coef / stdErr
	return t, 2 * (1 - dist.CDF(math.Abs(t)))
}

// Beta regresses assetColumn on marketColumn of a joined table. Rows with a
// missing value in either column are skipped.
func Beta(df *dataframe.DataFrame, assetColumn, marketColumn string) (Regression, error) {
	const op = "Beta"
	if err := validation.ValidateNumericColumns(df, op, assetColumn, marketColumn); err != nil {
		return Regression{}, err
	}
	assetCol, _ := df.Column(assetColumn)
	marketCol, _ := df.Column(marketColumn)

	asset := make([]float64, 0, df.Len())
	market := make([]float64, 0, df.Len())
	for i := 0; i < df.Len(); i++ {
		a, aok := series.Float64At(assetCol, i)
		m, mok := series.Float64At(marketCol, i)
		if !aok || !mok || math.IsNaN(a) || math.IsNaN(m) {
			continue
		}
		asset = append(asset, a)
		market = append(market, m)
	}
	return Regress(asset, market)
}
