// Package classify implements the report worker's single error taxonomy:
// every raw error from the object store, metadata store, lock store, or
// pipeline engine passes through Classify exactly once, at the adapter
// boundary, before the handler ever sees it.
package classify

import (
	"errors"
	"strings"

	"github.com/aiobjectives/report-worker/internal/model"
)

// Coded is implemented by errors that carry a numeric HTTP-like status code
// (e.g. a wrapped gRPC or REST client error).
type Coded interface {
	Code() int
}

// StringCoded is implemented by errors that carry the metadata store's
// string taxonomy (e.g. "unavailable", "not-found").
type StringCoded interface {
	StringCode() string
}

var transientStringCodes = map[string]bool{
	"unavailable":        true,
	"deadline-exceeded":  true,
	"aborted":            true,
	"internal":           true,
	"resource-exhausted": true,
}

var permanentStringCodes = map[string]bool{
	"permission-denied":  true,
	"unauthenticated":    true,
	"not-found":          true,
	"already-exists":     true,
	"failed-precondition": true,
	"invalid-argument":   true,
}

var transientSubstrings = []string{
	"timeout", "etimedout", "econnrefused", "econnreset",
	"unavailable", "deadline", "429", "503", "504",
}

var permanentSubstrings = []string{
	"permission", "access denied", "unauthorized", "forbidden",
	"not found", "no such object", "invalid", "403", "401", "404",
}

// Classify maps a raw error into the handler's closed ClassifiedError sum
// type, applying spec's ordered rule list: numeric code, then string code,
// then substring heuristics, defaulting to permanent so an unknown error
// never causes infinite redelivery.
func Classify(err error) *model.ClassifiedError {
	if err == nil {
		return nil
	}
	var ce *model.ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	var coded Coded
	if errors.As(err, &coded) {
		code := coded.Code()
		switch {
		case code == 408 || code == 429 || (code >= 500 && code <= 504) || code >= 505:
			return model.NewClassifiedError(true, model.CategoryInfrastructure, "transient upstream error", err)
		case code >= 400 && code < 500:
			return model.NewClassifiedError(false, model.CategoryInfrastructure, "permanent upstream error", err)
		}
	}

	var strCoded StringCoded
	if errors.As(err, &strCoded) {
		code := strCoded.StringCode()
		if transientStringCodes[code] {
			return model.NewClassifiedError(true, model.CategoryInfrastructure, "transient store error: "+code, err)
		}
		if permanentStringCodes[code] {
			return model.NewClassifiedError(false, model.CategoryInfrastructure, "permanent store error: "+code, err)
		}
	}

	msg := strings.ToLower(err.Error())
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return model.NewClassifiedError(true, model.CategoryInfrastructure, "transient error", err)
		}
	}
	for _, s := range permanentSubstrings {
		if strings.Contains(msg, s) {
			return model.NewClassifiedError(false, model.CategoryInfrastructure, "permanent error", err)
		}
	}

	return model.NewClassifiedError(false, model.CategoryUnknown, "unclassified error, treated as permanent", err)
}
