// File: deferred/helpers.go
// Author: momentics <momentics@gmail.com>

package deferred

// Succeed returns a Deferred already fired with v.
func Succeed(v any) *Deferred {
	d := New()
	d.Callback(v)
	return d
}

// Fail returns a Deferred already fired with err.
func Fail(err error) *Deferred {
	d := New()
	d.Errback(err)
	return d
}

// Execute runs fn and wraps its outcome in a Deferred. A *Deferred returned
// by fn is passed through; a panic becomes a failure.
func Execute(fn func() (any, error)) (d *Deferred) {
	defer func() {
		if r := recover(); r != nil {
			if IsContractViolation(r) {
				panic(r)
			}
			d = Fail(panicFailure(r))
		}
	}()
	out, err := fn()
	if err != nil {
		return Fail(err)
	}
	if inner, ok := out.(*Deferred); ok {
		return inner
	}
	return Succeed(out)
}

// GatherResults fires with a []any of every result, in input order, once all
// inputs succeed. The first failure fires the result immediately; failures
// of the inputs are consumed either way. Cancelling the result cancels every
// input.
func GatherResults(ds []*Deferred) *Deferred {
	out := NewWithCanceller(func(*Deferred) {
		for _, d := range ds {
			d.Cancel()
		}
	})
	results := make([]any, len(ds))
	remaining := len(ds)
	if remaining == 0 {
		out.Callback(results)
		return out
	}
	for i, d := range ds {
		i := i
		d.AddCallbacks(func(v any) (any, error) {
			results[i] = v
			remaining--
			if remaining == 0 && !out.Called() {
				out.Callback(results)
			}
			return v, nil
		}, func(f *Failure) (any, error) {
			if !out.Called() {
				out.Errback(f)
			}
			return nil, nil
		})
	}
	return out
}
