package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and external-source
// adapters return these (optionally wrapped) so services can translate them
// into verdicts or admin responses.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: tag or member does not exist in the store
// - ErrConflict: tag already holds a live binding to a different member
// - ErrUnavailable: membership-truth source unreachable
// - ErrTimeout: operation exceeded its deadline
// - ErrStorage: persistent-store fault; prior state is intact
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
	ErrTimeout     = errors.New("timeout")
	ErrStorage     = errors.New("storage fault")
)
