package service

import (
	"errors"
	"fmt"

	"shop-sync-service/internal/tiktok"
)

var (
	ErrShopNotFound       = errors.New("shop not found or not active")
	ErrWrongChannel       = errors.New("shop belongs to a different channel")
	ErrSyncInProgress     = errors.New("sync already in progress for shop")
	ErrInvalidSyncOptions = errors.New("either order_ids or sync_all must be set")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrMalformedWebhook   = errors.New("malformed webhook payload")
)

// ErrorKind is the closed set of sync failure classes
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindUnauthorized
	KindNotFound
	KindMalformed
)

// CodeUnauthorized is the wire code reported for authorization failures
const CodeUnauthorized = "UNAUTHORIZED_TIKTOK_API"

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return CodeUnauthorized
	case KindNotFound:
		return "NOT_FOUND"
	case KindMalformed:
		return "MALFORMED"
	default:
		return "TRANSIENT"
	}
}

// SyncError is a classified failure of a remote call or sync step
type SyncError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *SyncError) Error() string {
	if e.Kind == KindUnauthorized {
		return fmt.Sprintf("%s: %s: %v", CodeUnauthorized, e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Classify maps any error onto the closed kind set
func Classify(err error) ErrorKind {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Kind
	}

	switch {
	case errors.Is(err, tiktok.ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrShopNotFound), errors.Is(err, ErrWrongChannel):
		return KindNotFound
	case errors.Is(err, tiktok.ErrMalformedResponse),
		errors.Is(err, ErrInvalidSyncOptions),
		errors.Is(err, ErrMalformedWebhook):
		return KindMalformed
	default:
		return KindTransient
	}
}

// IsUnauthorized reports whether err is an authorization failure
func IsUnauthorized(err error) bool {
	return err != nil && Classify(err) == KindUnauthorized
}
