package native

import (
	"context"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-kernels/compiler"
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/jit"
	"github.com/wippyai/wasm-kernels/kernel"
)

// maxQuadDepth bounds the bisection depth of Quad.
const maxQuadDepth = 48

// Integrand is a kernel with the contract float64(float64).
type Integrand struct {
	spec *compiler.Specialization
}

// NewIntegrand compiles k as an integrand.
func NewIntegrand(ctx context.Context, cache *jit.Cache, k *kernel.Kernel) (*Integrand, error) {
	s, err := bind(ctx, cache, k, IntegrandContract)
	if err != nil {
		return nil, err
	}
	return &Integrand{spec: s}, nil
}

// Eval calls the integrand once.
func (f *Integrand) Eval(ctx context.Context, x float64) (float64, error) {
	var y float64
	err := f.spec.Session(ctx, func(ss *compiler.Session) error {
		var err error
		y, err = eval(ss, x)
		return err
	})
	return y, err
}

func eval(ss *compiler.Session, x float64) (float64, error) {
	res, err := ss.Call(api.EncodeF64(x))
	if err != nil {
		return 0, err
	}
	return api.DecodeF64(res), nil
}

// Trapezoid integrates f over [a, b] with the composite trapezoid rule on
// n intervals.
func Trapezoid(ctx context.Context, f *Integrand, a, b float64, n int) (float64, error) {
	if n < 1 {
		return 0, kerrors.InvalidInput(kerrors.PhaseNative, fmt.Sprintf("trapezoid needs at least one interval, got %d", n))
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return 0, kerrors.InvalidInput(kerrors.PhaseNative, "trapezoid needs finite bounds")
	}
	var sum float64
	err := f.spec.Session(ctx, func(ss *compiler.Session) error {
		h := (b - a) / float64(n)
		fa, err := eval(ss, a)
		if err != nil {
			return err
		}
		fb, err := eval(ss, b)
		if err != nil {
			return err
		}
		s := (fa + fb) / 2
		for i := 1; i < n; i++ {
			if i%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			y, err := eval(ss, a+float64(i)*h)
			if err != nil {
				return err
			}
			s += y
		}
		sum = s * h
		return nil
	})
	return sum, err
}

// Quad integrates f over [a, b] by adaptive Simpson quadrature to an
// absolute tolerance tol. Either bound may be infinite; infinite ranges are
// mapped onto (0, 1] by x = a + (1-u)/u.
func Quad(ctx context.Context, f *Integrand, a, b, tol float64) (float64, error) {
	if math.IsNaN(a) || math.IsNaN(b) {
		return 0, kerrors.InvalidInput(kerrors.PhaseNative, "quad bounds are NaN")
	}
	if tol <= 0 {
		tol = 1e-10
	}
	if a == b {
		return 0, nil
	}
	if a > b {
		v, err := Quad(ctx, f, b, a, tol)
		return -v, err
	}

	var result float64
	err := f.spec.Session(ctx, func(ss *compiler.Session) error {
		q := &quad{ctx: ctx, ss: ss}
		switch {
		case math.IsInf(a, -1) && math.IsInf(b, 1):
			left, err := q.integrate(q.tail(0, -1), 0, 1, tol/2)
			if err != nil {
				return err
			}
			right, err := q.integrate(q.tail(0, 1), 0, 1, tol/2)
			result = left + right
			return err
		case math.IsInf(b, 1):
			v, err := q.integrate(q.tail(a, 1), 0, 1, tol)
			result = v
			return err
		case math.IsInf(a, -1):
			v, err := q.integrate(q.tail(b, -1), 0, 1, tol)
			result = v
			return err
		}
		v, err := q.integrate(q.eval, a, b, tol)
		result = v
		return err
	})
	return result, err
}

type quad struct {
	ctx   context.Context
	ss    *compiler.Session
	evals int
}

func (q *quad) eval(x float64) (float64, error) {
	q.evals++
	if q.evals%1024 == 0 {
		if err := q.ctx.Err(); err != nil {
			return 0, err
		}
	}
	return eval(q.ss, x)
}

// tail maps the half line from x0 in direction dir onto u in (0, 1]. The
// transformed integrand is taken as 0 at u = 0.
func (q *quad) tail(x0 float64, dir float64) func(float64) (float64, error) {
	return func(u float64) (float64, error) {
		if u == 0 {
			return 0, nil
		}
		y, err := q.eval(x0 + dir*(1-u)/u)
		if err != nil {
			return 0, err
		}
		return y / (u * u), nil
	}
}

func (q *quad) integrate(g func(float64) (float64, error), a, b, tol float64) (float64, error) {
	fa, err := g(a)
	if err != nil {
		return 0, err
	}
	fb, err := g(b)
	if err != nil {
		return 0, err
	}
	m := (a + b) / 2
	fm, err := g(m)
	if err != nil {
		return 0, err
	}
	whole := (b - a) / 6 * (fa + 4*fm + fb)
	return q.simpson(g, a, b, fa, fm, fb, whole, tol, maxQuadDepth)
}

func (q *quad) simpson(g func(float64) (float64, error), a, b, fa, fm, fb, whole, tol float64, depth int) (float64, error) {
	m := (a + b) / 2
	lm, rm := (a+m)/2, (m+b)/2
	flm, err := g(lm)
	if err != nil {
		return 0, err
	}
	frm, err := g(rm)
	if err != nil {
		return 0, err
	}
	left := (m - a) / 6 * (fa + 4*flm + fm)
	right := (b - m) / 6 * (fm + 4*frm + fb)
	delta := left + right - whole
	if depth <= 0 || math.Abs(delta) <= 15*tol {
		return left + right + delta/15, nil
	}
	l, err := q.simpson(g, a, m, fa, flm, fm, left, tol/2, depth-1)
	if err != nil {
		return 0, err
	}
	r, err := q.simpson(g, m, b, fm, frm, fb, right, tol/2, depth-1)
	if err != nil {
		return 0, err
	}
	return l + r, nil
}
