package domain

import "errors"

// Discovery error taxonomy. Callers wrap these with context and match with errors.Is.
var (
	// ErrRangeResolutionFailed means the local subnet could not be detected; the default range is used instead.
	ErrRangeResolutionFailed = errors.New("range resolution failed")
	// ErrPrewarmFailed means the neighbor-cache sweep failed; discovery continues with the existing cache.
	ErrPrewarmFailed = errors.New("prewarm failed")
	// ErrProbeTimedOut means a host did not answer within its probe budget.
	ErrProbeTimedOut = errors.New("probe timed out")
	// ErrProbeUnreachable means the network reported the host unreachable.
	ErrProbeUnreachable = errors.New("probe unreachable")
	// ErrRoundFailed means a whole discovery round produced nothing publishable.
	ErrRoundFailed = errors.New("discovery round failed")
	// ErrNotReady means no round has completed yet.
	ErrNotReady = errors.New("inventory not yet available")
)
