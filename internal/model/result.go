package model

// Status classifies the outcome of a pipeline stage.
type Status string

const (
	StatusOK     Status = "ok"
	StatusEmpty  Status = "empty"
	StatusFailed Status = "failed"
)

// Result carries a stage outcome so callers can log failures without
// changing control flow. Value is always usable, even when Status is
// StatusFailed.
type Result[T any] struct {
	Status Status
	Value  T
	Err    error
}

// OK wraps a successful value.
func OK[T any](v T) Result[T] {
	return Result[T]{Status: StatusOK, Value: v}
}

// Empty wraps a value produced by a stage that found nothing.
func Empty[T any](v T) Result[T] {
	return Result[T]{Status: StatusEmpty, Value: v}
}

// Failed wraps a fallback value together with the error that caused it.
func Failed[T any](v T, err error) Result[T] {
	return Result[T]{Status: StatusFailed, Value: v, Err: err}
}

// Ok reports whether the stage succeeded.
func (r Result[T]) Ok() bool { return r.Status == StatusOK }
