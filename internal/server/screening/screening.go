// Package screening decides whether incoming content may enter the pipeline.
//
// PolicyScreener is a policy stub: it enforces a size limit and a media type
// denylist and performs no signature scanning. A real scanning engine should
// be plugged in behind Screener with the same verdict contract.
package screening

import (
	"context"
	"strings"
)

// DefaultMaxSize is the largest accepted payload, 100 MiB.
const DefaultMaxSize int64 = 100 * 1024 * 1024

const (
	ReasonTooLarge   = "too large"
	ReasonSuspicious = "suspicious type"
	ReasonClean      = "clean"
)

// DefaultDenied lists executable formats rejected by default.
var DefaultDenied = []string{
	"application/x-executable",
	"application/x-dosexec",
	"application/vnd.microsoft.portable-executable",
	"application/x-elf",
	"application/x-sharedlib",
	"application/x-mach-binary",
}

// Subject is what gets screened.
type Subject struct {
	Path      string
	MediaType string
	Size      int64
}

// Verdict is the screening decision. Reason is always set.
type Verdict struct {
	Accepted bool
	Reason   string
}

type Screener interface {
	Screen(ctx context.Context, s Subject) Verdict
}

// PolicyScreener evaluates rules in order and the first match wins:
// size over MaxSize, then media type in Denied, then accept.
type PolicyScreener struct {
	MaxSize int64
	denied  map[string]struct{}
}

// NewPolicyScreener builds a screener. maxSize <= 0 selects DefaultMaxSize and
// a nil denied list selects DefaultDenied.
func NewPolicyScreener(maxSize int64, denied []string) *PolicyScreener {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if denied == nil {
		denied = DefaultDenied
	}
	set := make(map[string]struct{}, len(denied))
	for _, d := range denied {
		set[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return &PolicyScreener{MaxSize: maxSize, denied: set}
}

func (p *PolicyScreener) Screen(_ context.Context, s Subject) Verdict {
	if s.Size > p.MaxSize {
		return Verdict{Accepted: false, Reason: ReasonTooLarge}
	}
	if _, ok := p.denied[strings.ToLower(s.MediaType)]; ok {
		return Verdict{Accepted: false, Reason: ReasonSuspicious}
	}
	return Verdict{Accepted: true, Reason: ReasonClean}
}
