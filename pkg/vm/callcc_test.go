package vm_test

import "testing"

// TestCallCCEscape covers the classic early-exit use: invoking the
// captured continuation abandons the rest of the caller's computation
// and yields the continuation's argument as the call-cc expression's
// result.
func TestCallCCEscape(t *testing.T) {
	assertDisplayEqual(t, `
	(define (find-first pred lst)
	  (call/cc (lambda (return)
	    (define (loop l)
	      (if (pair? l)
	        (begin
	          (if (pred (car l)) (return (car l)) 0)
	          (loop (cdr l)))
	        (return false)))
	    (loop lst))))
	(display (find-first (lambda (x) (> x 2)) (list 1 2 3 4)))`, "3", false)
}

// TestCallCCNoEscape covers the case where the continuation is never
// invoked: call-cc just returns whatever its proc returns normally.
func TestCallCCNoEscape(t *testing.T) {
	assertDisplayEqual(t, `
	(display (call/cc (lambda (k) (+ 1 2))))`, "3", false)
}

// TestCallCCMultiShot covers re-invoking a captured continuation after
// the call/cc expression has already returned once: each invocation
// resumes the rest of the program from the call/cc point onward, not
// just the enclosing expression, the defining multi-shot property
// distinguishing this from a one-shot escape-only continuation.
func TestCallCCMultiShot(t *testing.T) {
	assertDisplayEqual(t, `
	(define saved false)
	(define count 0)
	(display (+ 1 (call/cc (lambda (k) (set! saved k) 0))))
	(set! count (+ count 1))
	(if (< count 3) (saved count) 0)`, "123", false)
}
