package partition

// Error tags, checked with xerrors.TagIs.
type (
	// IOError tags failures to open or read a device.
	IOError struct{}
	// CodecLoadError tags devices whose contents are not a valid table.
	CodecLoadError struct{}
	// NotFoundError tags a partition index absent from the table.
	NotFoundError struct{}
	// NotInUseError tags a partition index present in the table but free.
	NotInUseError struct{}
	// CodecMutationError tags removal or write failures inside the codec.
	CodecMutationError struct{}
)
