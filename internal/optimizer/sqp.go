package optimizer

import (
	"math"

	"roc/internal/domain"
)

// sqp runs the driver's penalty-merit minimization loop. Each major
// iteration linearizes an objective-plus-penalty merit function around
// the current point via forward-difference probes (which consume
// function evaluations but are not logged as Iterations — only the
// accepted step at the end of each major iteration is), takes a
// projected-gradient step, backtracks the step length until the merit
// function improves, and clips the result to the box bounds. The loop
// stops when the step size falls below tol, when maxIter major
// iterations have run, or when a probe observes the cancellation token.
func (d *driver) sqp(x0, lower, upper []float64) (x []float64, f float64, st status, nit int, err error) {
	n := len(x0)
	x = append([]float64(nil), x0...)

	f, err = d.objective(x)
	if err != nil {
		return nil, 0, statusInfeasible, 0, err
	}

	tol := d.req.Tolerance
	maxIter := d.req.MaxIterations
	penalty := 1e4

	for it := 1; it <= maxIter; it++ {
		grad, gErr := d.gradient(x, penalty)
		if gErr != nil {
			return nil, 0, statusInfeasible, it, gErr
		}

		if norm(grad) < tol {
			return x, f, statusConverged, it, nil
		}

		meritCur, mErr := d.merit(x, penalty)
		if mErr != nil {
			return nil, 0, statusInfeasible, it, mErr
		}

		step := 1.0
		improved := false
		var xNext []float64

		for attempt := 0; attempt < 20; attempt++ {
			xNext = make([]float64, n)
			for i := range x {
				xNext[i] = clip(x[i]-step*grad[i], lower[i], upper[i])
			}

			meritNext, mErr := d.merit(xNext, penalty)
			if mErr != nil {
				return nil, 0, statusInfeasible, it, mErr
			}

			if meritNext < meritCur {
				improved = true
				break
			}
			step *= 0.5
		}

		if !improved || dist(x, xNext) < tol {
			return x, f, statusConverged, it, nil
		}

		x = xNext
		f, err = d.objective(x)
		if err != nil {
			return nil, 0, statusInfeasible, it, err
		}
		nit = it
	}

	return x, f, statusMaxIterations, maxIter, nil
}

// merit evaluates the unlogged objective-plus-penalty value at x,
// consuming one function evaluation (counted toward nfev) without
// appending an Iteration.
func (d *driver) merit(x []float64, penalty float64) (float64, error) {
	value, metrics, err := d.evalRaw(x)
	if err != nil {
		return 0, err
	}
	g := constraintValues(metrics, d.req.Constraints)
	total := value
	for _, gi := range g {
		if gi < 0 {
			total += penalty * gi * gi
		}
	}
	return total, nil
}

// gradient computes a forward-difference approximation of the merit
// function's gradient at x, one unlogged probe per dimension plus one
// at the base point.
func (d *driver) gradient(x []float64, penalty float64) ([]float64, error) {
	const h = 1e-6
	n := len(x)
	grad := make([]float64, n)

	f0, err := d.merit(x, penalty)
	if err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		xh := append([]float64(nil), x...)
		xh[i] += h
		fh, err := d.merit(xh, penalty)
		if err != nil {
			return nil, err
		}
		grad[i] = (fh - f0) / h
	}
	return grad, nil
}

// evalRaw evaluates the physics model and signed objective at x without
// appending to the iteration log or invoking the progress callback. It
// still checks the cancellation token and counts toward nfev, matching
// scipy's distinction between logged objective calls and the extra
// evaluations finite-difference gradients consume.
func (d *driver) evalRaw(x []float64) (float64, domain.PerformanceMetrics, error) {
	if d.req.Cancel != nil && d.req.Cancel.Cancelled() {
		return 0, domain.PerformanceMetrics{}, CancelledError{}
	}
	d.nfev++
	vars := d.unpack(x)
	metrics := d.evaluatePhysics(vars)
	return signedObjective(d.req.Objective, metrics), metrics, nil
}

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func dist(a, b []float64) float64 {
	var s float64
	for i := range a {
		diff := a[i] - b[i]
		s += diff * diff
	}
	return math.Sqrt(s)
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
