package domain

import "errors"

var (
	ErrInvalidRequest        = errors.New("invalid calculation request")
	ErrCompositionNotFound   = errors.New("composition not found")
	ErrSampleNotFound        = errors.New("sample not found")
	ErrUnknownNitrogenSource = errors.New("unknown nitrogen source")
	ErrUnknownIronChelate    = errors.New("unknown iron chelate")
)

// IsRejected reports whether err means the request itself can never be
// calculated, as opposed to a failure that may succeed on retry.
func IsRejected(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrUnknownNitrogenSource) ||
		errors.Is(err, ErrUnknownIronChelate) ||
		errors.Is(err, ErrCompositionNotFound) ||
		errors.Is(err, ErrSampleNotFound)
}
