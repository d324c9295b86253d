package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *MirageError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *MirageError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *MirageError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Processing errors

func UnreadableInput(path string, cause error) *MirageError {
	return Wrap(cause, CategoryFileSystem, SeverityWarning, "cannot read input file").
		WithContext("path", path)
}

func ReassemblyViolation(path string, cause error) *MirageError {
	return Wrap(cause, CategoryTokenize, SeverityError, "reassembly invariant violated").
		WithContext("path", path)
}

func OutputWriteFailed(path string, cause error) *MirageError {
	return Wrap(cause, CategoryFileSystem, SeverityError, "cannot write output file").
		WithContext("path", path)
}

func RunlogError(operation string, cause error) *MirageError {
	return Wrap(cause, CategoryRuntime, SeverityWarning, "run history operation failed").
		WithContext("operation", operation)
}
