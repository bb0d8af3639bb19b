// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package metadata

// Kind is one of the canonical error kinds. Every error returned across
// a DAL/service/API boundary carries one of these so the gRPC layer can
// map it to a status code without string-sniffing.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindInvalidInput
	KindNotFound
	KindAlreadyExists
	KindVersionConflict
	KindTagVersionConflict
	KindWrongObjectType
	KindPermissionDenied
	KindUnauthenticated
	KindCacheTicket
	KindCacheNotFound
	KindExecutorTransient
	KindExecutorFatal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindVersionConflict:
		return "VersionConflict"
	case KindTagVersionConflict:
		return "TagVersionConflict"
	case KindWrongObjectType:
		return "WrongObjectType"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindUnauthenticated:
		return "Unauthenticated"
	case KindCacheTicket:
		return "CacheTicket"
	case KindCacheNotFound:
		return "CacheNotFound"
	case KindExecutorTransient:
		return "ExecutorTransient"
	case KindExecutorFatal:
		return "ExecutorFatal"
	default:
		return "Internal"
	}
}

// KindedError is a metadata error tagged with a Kind, wrapping the
// zeebo/errs class used for stack-trace formatting and equality checks.
type KindedError struct {
	kind Kind
	err  error
}

// Error implements the error interface.
func (e *KindedError) Error() string {
	return e.err.Error()
}

// Unwrap exposes the wrapped error for errors.Is/errors.As.
func (e *KindedError) Unwrap() error {
	return e.err
}

// Kind returns the classified error kind.
func (e *KindedError) Kind() Kind {
	return e.kind
}

// NewKindedError builds a KindedError of the given kind using Error's
// message formatting.
func NewKindedError(kind Kind, format string, args ...interface{}) error {
	return &KindedError{kind: kind, err: Error.New(format, args...)}
}

// KindOf extracts the Kind from err, defaulting to KindInternal when err
// isn't a KindedError (or doesn't wrap one).
func KindOf(err error) Kind {
	for err != nil {
		if k, ok := err.(*KindedError); ok {
			return k.Kind()
		}
		unwrap, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrap.Unwrap()
	}
	return KindInternal
}
