package utils

// Iterator is a generic forward iterator over a stream of values.
type Iterator[T any] interface {
	HasNext() bool
	Next() (T, error)
}
