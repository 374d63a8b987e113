// Package fp wraps fp-go's Either as the Result type returned by services.
package fp

import (
	"github.com/IBM/fp-go/either"
)

// Result is either an error or a value of type T
type Result[T any] = either.Either[error, T]

// Success wraps a value
func Success[T any](value T) Result[T] {
	return either.Right[error](value)
}

// Failure wraps an error
func Failure[T any](err error) Result[T] {
	return either.Left[T](err)
}

func IsSuccess[T any](result Result[T]) bool {
	return either.IsRight(result)
}

func IsFailure[T any](result Result[T]) bool {
	return either.IsLeft(result)
}

// GetError returns the error of a failure and nil for a success
func GetError[T any](result Result[T]) error {
	return either.Fold(
		func(err error) error { return err },
		func(_ T) error { return nil },
	)(result)
}

// GetValue returns the value of a success and the zero value for a failure
func GetValue[T any](result Result[T]) T {
	var zero T
	return either.GetOrElse(func(_ error) T { return zero })(result)
}

// Map transforms the value of a success and passes failures through
func Map[A, B any](f func(A) B) func(Result[A]) Result[B] {
	return either.Map[error, A, B](f)
}
