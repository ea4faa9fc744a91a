package utils

// Ptr returns a pointer to a copy of v, for optional fields set from
// literals or computed values.
//
//	request.Temperature = utils.Ptr(0.7)
func Ptr[T any](v T) *T {
	return &v
}
