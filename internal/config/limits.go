package config

const (
	// MaxTitleLength is the maximum length for document titles.
	// Limited to 500 to fit comfortably in a TEXT column while keeping
	// titles usable in listings.
	MaxTitleLength = 500

	// MaxUploadBytes caps the raw markdown accepted on upload.
	MaxUploadBytes = 10 << 20

	// MaxRevisionPageSize caps the page size for revision listings.
	MaxRevisionPageSize = 100

	// DefaultRevisionPageSize is used when the caller does not specify one.
	DefaultRevisionPageSize = 20
)
