package service

import (
	"errors"

	"LanChat/internal/repo"
)

// Filter keeps the items fn accepts. The result is never nil.
func Filter[T any](items []T, fn func(T) bool) []T {
	result := make([]T, 0, len(items))
	for _, v := range items {
		if fn(v) {
			result = append(result, v)
		}
	}
	return result
}

func errorsIsConflict(err error) bool {
	return errors.Is(err, repo.ErrConflict)
}
