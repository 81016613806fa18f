package transcribe

import (
	"time"

	"github.com/MrWong99/monitome/pkg/provider/stt"
)

// CommitPolicy decides the commit field of each outbound chunk.
//
// Under [stt.CommitManual] a commit is requested whenever at least Interval
// has elapsed since the previous commit, or since the policy was created if
// no commit has been sent yet. Under [stt.CommitVAD] the field is always
// omitted and segmentation is left to the server.
//
// A CommitPolicy is not safe for concurrent use; the sender loop owns it.
type CommitPolicy struct {
	strategy stt.CommitStrategy
	interval time.Duration
	last     time.Time
}

// NewCommitPolicy returns a policy whose clock starts at start.
func NewCommitPolicy(strategy stt.CommitStrategy, interval time.Duration, start time.Time) *CommitPolicy {
	return &CommitPolicy{strategy: strategy, interval: interval, last: start}
}

// Decide returns the commit value for a chunk sent at now. It returns nil
// when the field must be omitted.
func (p *CommitPolicy) Decide(now time.Time) *bool {
	if p.strategy != stt.CommitManual {
		return nil
	}
	commit := now.Sub(p.last) >= p.interval
	if commit {
		p.last = now
	}
	return &commit
}
