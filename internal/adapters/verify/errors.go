package verify

import "errors"

var (
	// ErrDisabled is returned by the noop extractor; callers record the job as skipped.
	ErrDisabled = errors.New("verify: extractor disabled")
	// ErrNoEvidence means the submission carried no evidence URL.
	ErrNoEvidence = errors.New("verify: no evidence")
	// ErrExtractor wraps failures reported by the extractor service.
	ErrExtractor = errors.New("verify: extractor failed")
)
