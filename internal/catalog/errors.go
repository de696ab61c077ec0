package catalog

import "fmt"

// CatalogError reports a malformed catalog, such as a dependency cycle.
// It indicates an authoring bug and is never worth retrying.
type CatalogError struct {
	Message string
	Sets    []string
	Cause   error
}

// NewCatalogError creates a new CatalogError
func NewCatalogError(message string, cause error) *CatalogError {
	return &CatalogError{Message: message, Cause: cause}
}

func (e *CatalogError) withSets(sets []string) *CatalogError {
	e.Sets = append([]string(nil), sets...)
	return e
}

// Error implements the error interface
func (e *CatalogError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("CATALOG_ERROR: %s (caused by: %v)", e.Message, e.Cause)
	}
	return fmt.Sprintf("CATALOG_ERROR: %s", e.Message)
}

// Unwrap returns the underlying cause error
func (e *CatalogError) Unwrap() error {
	return e.Cause
}
