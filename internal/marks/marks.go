// Package marks splits a question's total marks across its sub-questions.
package marks

import "errors"

var (
	// ErrInvalidSubCount is returned when there are no parts to allocate to.
	ErrInvalidSubCount = errors.New("marks: sub-question count must be positive")
	// ErrNegativeTotal is returned for a negative mark total.
	ErrNegativeTotal = errors.New("marks: total marks must not be negative")
)

// Allocate distributes total over subCount parts. Every part receives
// total/subCount; the first total%subCount parts receive one extra mark, so
// the result always sums to total and earlier sub-questions win ties.
func Allocate(total, subCount int) ([]int, error) {
	if subCount <= 0 {
		return nil, ErrInvalidSubCount
	}
	if total < 0 {
		return nil, ErrNegativeTotal
	}

	base := total / subCount
	remainder := total % subCount

	out := make([]int, subCount)
	for i := range out {
		out[i] = base
		if i < remainder {
			out[i]++
		}
	}
	return out, nil
}

// Sum adds up an allocation.
func Sum(alloc []int) int {
	n := 0
	for _, v := range alloc {
		n += v
	}
	return n
}
