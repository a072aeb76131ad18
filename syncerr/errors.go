// Package syncerr defines the error taxonomy shared by the fetcher, the sync
// controller and the mutation coordinator.
//
// Every error is a *goerrors.Error carrying a category and a text code, so
// callers can branch on the kind of failure without string matching:
//
//	entry, err := ctrl.EnsureFresh(ctx, sig, false)
//	switch {
//	case syncerr.IsNetwork(err):
//		// transport failed, cached data (if any) is still valid
//	case syncerr.IsServer(err):
//		// backend answered with status != "success"
//	}
//
// No error produced by this module is fatal; all of them are recoverable by a
// later refresh or retry.
package syncerr

import (
	"errors"
	"strconv"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to the errors produced by this module.
const (
	CodeNetwork    = "NETWORK_ERROR"
	CodeServer     = "SERVER_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "RECORD_NOT_FOUND"
)

// Network wraps a transport level failure.
func Network(source error, message string) *goerrors.Error {
	if source == nil {
		return goerrors.New(message, goerrors.CategoryExternal).WithTextCode(CodeNetwork)
	}
	return goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithTextCode(CodeNetwork)
}

// Server reports a response whose status field was not "success".
func Server(status, message string) *goerrors.Error {
	if message == "" {
		message = "backend reported status " + strconv.Quote(status)
	}
	return goerrors.New(message, goerrors.CategoryExternal).
		WithTextCode(CodeServer).
		WithMetadata(map[string]any{"status": status})
}

// Validation reports a locally rejected operation. It never reaches the network.
func Validation(message string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryValidation).
		WithTextCode(CodeValidation)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// NotFound reports a record or snapshot missing from the cache.
func NotFound(message string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryNotFound).
		WithTextCode(CodeNotFound)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool { return hasCode(err, CodeNetwork) }

// IsServer reports whether err is a backend reported failure.
func IsServer(err error) bool { return hasCode(err, CodeServer) }

// IsValidation reports whether err is a local validation failure.
func IsValidation(err error) bool { return hasCode(err, CodeValidation) }

// IsNotFound reports whether err is a cache miss on a record or snapshot.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsRetryable reports whether retrying the same operation may succeed.
func IsRetryable(err error) bool {
	return IsNetwork(err) || IsServer(err)
}

// Message returns the human readable message of err without the category
// and code prefix, suitable for a user-facing notice.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *goerrors.Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

// Metadata returns the metadata attached to err, if it is one of ours.
func Metadata(err error) map[string]any {
	var e *goerrors.Error
	if errors.As(err, &e) {
		return e.Metadata
	}
	return nil
}

func hasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var e *goerrors.Error
	if !errors.As(err, &e) {
		return false
	}
	return e.TextCode == code
}
