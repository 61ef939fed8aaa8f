// Package selector builds memoized read projections over store state.
//
// A selector declares its input projections up front. It recomputes only
// when one of those inputs differs (==) from the previous call; otherwise it
// returns the cached result unchanged. Inputs are usually slice pointers,
// which reducers replace whenever the slice changes.
package selector

import "sync"

// New1 memoizes combine over one input.
func New1[S any, A comparable, R any](inA func(S) A, combine func(A) R) func(S) R {
	var (
		mu    sync.Mutex
		valid bool
		lastA A
		last  R
	)
	return func(s S) R {
		a := inA(s)
		mu.Lock()
		defer mu.Unlock()
		if valid && a == lastA {
			return last
		}
		last = combine(a)
		lastA, valid = a, true
		return last
	}
}

// New2 memoizes combine over two inputs. combine receives both even when it
// only reads one; the second still invalidates the cache.
func New2[S any, A, B comparable, R any](inA func(S) A, inB func(S) B, combine func(A, B) R) func(S) R {
	var (
		mu    sync.Mutex
		valid bool
		lastA A
		lastB B
		last  R
	)
	return func(s S) R {
		a, b := inA(s), inB(s)
		mu.Lock()
		defer mu.Unlock()
		if valid && a == lastA && b == lastB {
			return last
		}
		last = combine(a, b)
		lastA, lastB, valid = a, b, true
		return last
	}
}
