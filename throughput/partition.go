// Package throughput splits write workloads into batches that fit a provisioned
// bytes-per-window budget.
package throughput

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SafetyBufferBytes is subtracted from every window to absorb size estimation error.
const SafetyBufferBytes = 20000

var (
	ErrNoBudget      = errors.New("throughput: budget must be positive")
	ErrOversizedItem = errors.New("throughput: item larger than budget")
)

// Budget returns the bytes that may be written per window for a store provisioned
// with the given throughput units when each write costs costPerWrite units.
func Budget(provisioned, costPerWrite int) int {
	if costPerWrite <= 0 {
		return 0
	}
	return provisioned*1000/costPerWrite - SafetyBufferBytes
}

// Partition splits items, in order, into batches whose summed size stays within budget.
// An item that alone exceeds the budget is reported as ErrOversizedItem.
func Partition[T any](items []T, budget int, size func(T) int) ([][]T, error) {
	if budget <= 0 {
		return nil, ErrNoBudget
	}

	var (
		batches [][]T
		current []T
		used    int
	)
	for i, item := range items {
		n := size(item)
		if n > budget {
			return nil, fmt.Errorf("%w: item %d is %d bytes, budget %d", ErrOversizedItem, i, n, budget)
		}

		if used+n > budget {
			batches = append(batches, current)
			current = nil
			used = 0
		}
		current = append(current, item)
		used += n
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}

	return batches, nil
}

// JSONSize is the serialized size of v, the unit the budget is expressed in.
func JSONSize[T any](v T) int {
	data, err := json.Marshal(v)
	if err != nil {
		return len(fmt.Sprint(v))
	}
	return len(data)
}

// StringSize sizes plain strings such as repository names.
func StringSize(s string) int {
	return len(s)
}
