// Package errors provides centralized error handling for the detection pipeline.
//
// Errors are built with a fluent builder so every failure carries the component
// that produced it, a category used by the pipeline to decide whether the
// failure is fatal or only excludes one station, cluster or window, and a
// small bag of structured context for logging:
//
//	return errors.Newf("waveform %s has %d samples, expected %d", id, got, want).
//		Component("cluster").
//		Category(errors.CategoryData).
//		Context("station", station).
//		Build()
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

// CategorizedError is an interface for errors that can specify their own category
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	// Pipeline taxonomy
	CategoryConfiguration ErrorCategory = "configuration" // invalid parameter, fatal before any computation
	CategoryData          ErrorCategory = "data"          // mismatched or missing waveform data, excludes the affected entity
	CategoryAlgorithm     ErrorCategory = "algorithm"     // degenerate decomposition or empty partition, excludes the affected entity

	// Ambient categories
	CategoryValidation   ErrorCategory = "validation"
	CategoryFileIO       ErrorCategory = "file-io"
	CategoryFileParsing  ErrorCategory = "file-parsing"
	CategoryNetwork      ErrorCategory = "network"
	CategoryDatabase     ErrorCategory = "database"
	CategoryMQTT         ErrorCategory = "mqtt"
	CategoryNotFound     ErrorCategory = "not-found"
	CategoryTimeout      ErrorCategory = "timeout"
	CategoryCancellation ErrorCategory = "cancellation"
	CategoryGeneric      ErrorCategory = "generic"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with additional context and metadata
type EnhancedError struct {
	Err       error          // Original error
	component string         // Component where error occurred
	Category  ErrorCategory  // Error category for better grouping
	Context   map[string]any // Additional context data
	Timestamp time.Time      // When the error occurred
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches another EnhancedError by category, otherwise defers to the wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	return Is(ee.Err, target)
}

// ErrorCategory implements CategorizedError.
func (ee *EnhancedError) ErrorCategory() ErrorCategory {
	return ee.Category
}

// GetComponent returns the component name
func (ee *EnhancedError) GetComponent() string {
	return ee.component
}

// GetContext returns a copy of the error context
func (ee *EnhancedError) GetContext() map[string]any {
	return maps.Clone(ee.Context)
}

// GetTimestamp returns when the error occurred
func (ee *EnhancedError) GetTimestamp() time.Time {
	return ee.Timestamp
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates a new error with enhanced context
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new formatted error with enhanced context
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name (auto-detected if not set)
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category for better grouping
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// FileContext adds file-specific context
func (eb *ErrorBuilder) FileContext(filePath string, fileSize int64) *ErrorBuilder {
	if filePath != "" {
		eb.Context("file_extension", getFileExtension(filePath))
		eb.Context("file_path", filePath)
	}
	if fileSize > 0 {
		eb.Context("file_size_category", categorizeFileSize(fileSize))
	}
	return eb
}

// Build creates the EnhancedError
func (eb *ErrorBuilder) Build() *EnhancedError {
	if eb.err == nil {
		eb.err = stderrors.New("unknown error")
	}

	category := eb.category
	if category == "" {
		category = detectCategory(eb.err)
	}

	component := eb.component
	if component == "" {
		component = detectComponent()
	}

	ee := &EnhancedError{
		Err:       eb.err,
		component: component,
		Category:  category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
	return ee
}

// packageComponents maps package paths to component names for errors built
// without an explicit Component. Nested packages are listed before parents.
var packageComponents = []struct{ pkg, component string }{
	{"internal/observability/metrics", "metrics"},
	{"internal/observability", "metrics"},
	{"internal/cluster", "cluster"},
	{"internal/subspace", "subspace"},
	{"internal/scanner", "scanner"},
	{"internal/associate", "associate"},
	{"internal/analysis", "analysis"},
	{"internal/provider", "provider"},
	{"internal/datastore", "datastore"},
	{"internal/conf", "configuration"},
	{"internal/secrets", "configuration"},
	{"internal/mqtt", "mqtt"},
	{"internal/api", "api"},
	{"internal/keys", "keys"},
	{"internal/output", "output"},
	{"internal/waveform", "waveform"},
	{"internal/httpclient", "http"},
}

// detectComponent walks the call stack to find the first registered component
func detectComponent() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	if n == len(pcs) {
		pcs = make([]uintptr, 32)
		n = runtime.Callers(3, pcs)
	}

	for i := range n {
		fn := runtime.FuncForPC(pcs[i])
		if fn == nil {
			continue
		}
		funcName := fn.Name()
		if strings.Contains(funcName, "seisnet-go/internal/errors") {
			continue
		}
		if component := lookupComponent(funcName); component != ComponentUnknown {
			return component
		}
	}

	return ComponentUnknown
}

// lookupComponent returns the component of the first package that contains funcName.
func lookupComponent(funcName string) string {
	for _, pc := range packageComponents {
		if strings.Contains(funcName, "/"+pc.pkg+".") || strings.Contains(funcName, "/"+pc.pkg+"/") {
			return pc.component
		}
	}
	return ComponentUnknown
}

// detectCategory derives a category for errors built without one
func detectCategory(err error) ErrorCategory {
	var catErr CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr.ErrorCategory()
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		return CategoryCancellation
	case stderrors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	}

	errorMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errorMsg, "invalid") || strings.Contains(errorMsg, "must be"):
		return CategoryValidation
	case strings.Contains(errorMsg, "no such file") || strings.Contains(errorMsg, "open "):
		return CategoryFileIO
	case strings.Contains(errorMsg, "connection") || strings.Contains(errorMsg, "dial "):
		return CategoryNetwork
	}

	return CategoryGeneric
}

// getFileExtension extracts file extension for categorization
func getFileExtension(path string) string {
	if lastDot := strings.LastIndex(path, "."); lastDot > 0 && lastDot < len(path)-1 {
		return strings.ToLower(path[lastDot+1:])
	}
	return "none"
}

// categorizeFileSize groups file sizes into categories
func categorizeFileSize(size int64) string {
	switch {
	case size < 1024:
		return "tiny"
	case size < 1024*1024:
		return "small"
	case size < 10*1024*1024:
		return "medium"
	case size < 100*1024*1024:
		return "large"
	default:
		return "very-large"
	}
}

// Convenience functions for the pipeline taxonomy

// NewConfigError creates a configuration error. Configuration errors are fatal and
// are raised before any expensive computation starts.
func NewConfigError(component, format string, args ...any) *EnhancedError {
	return Newf(format, args...).Component(component).Category(CategoryConfiguration).Build()
}

// NewDataError creates a data error for a missing or inconsistent waveform.
func NewDataError(component, format string, args ...any) *EnhancedError {
	return Newf(format, args...).Component(component).Category(CategoryData).Build()
}

// NewAlgorithmError creates an algorithm error for a degenerate computation.
func NewAlgorithmError(component, format string, args ...any) *EnhancedError {
	return Newf(format, args...).Component(component).Category(CategoryAlgorithm).Build()
}

// FileError creates a file I/O error with appropriate context
func FileError(err error, filePath string, fileSize int64) *EnhancedError {
	return New(err).
		Category(CategoryFileIO).
		FileContext(filePath, fileSize).
		Build()
}

// Standard library passthrough functions
// These allow this package to be a drop-in replacement for the standard errors package

// NewStd creates a new standard error (passthrough to standard library)
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's tree matches target (passthrough to standard library)
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target (passthrough to standard library)
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join returns an error that wraps the given errors (passthrough to standard library)
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory checks if an error is an EnhancedError with the specified category.
func IsCategory(err error, category ErrorCategory) bool {
	var enhancedErr *EnhancedError
	return As(err, &enhancedErr) && enhancedErr.Category == category
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	return IsCategory(err, CategoryConfiguration)
}

// IsDataError reports whether err is a data error.
func IsDataError(err error) bool {
	return IsCategory(err, CategoryData)
}

// IsAlgorithmError reports whether err is an algorithm error.
func IsAlgorithmError(err error) bool {
	return IsCategory(err, CategoryAlgorithm)
}

// IsNotFound checks if an error is an EnhancedError with CategoryNotFound.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}

// CategoryOf returns the category of err, or CategoryGeneric if err carries none.
func CategoryOf(err error) ErrorCategory {
	var enhancedErr *EnhancedError
	if As(err, &enhancedErr) {
		return enhancedErr.Category
	}
	return detectCategory(err)
}
