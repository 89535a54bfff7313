package utils

// Ptr returns a pointer to v, for literals assigned to optional fields.
func Ptr[T any](v T) *T {
	return &v
}
