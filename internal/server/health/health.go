// Package health reports liveness of the ingestion service's collaborators.
package health

import (
	"context"
	"time"
)

const (
	StatusReachable   = "reachable"
	StatusUnreachable = "unreachable"
	StatusAvailable   = "available"
	StatusUnavailable = "unavailable"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Availability interface {
	Available() bool
}

type Enabler interface {
	Enabled() bool
}

type Report struct {
	Store       string
	Embeddings  string
	BlobSink    string
	Environment string
	Timestamp   time.Time
}

// Healthy reports whether the store is reachable. Embeddings and blob
// storage are optional and do not affect liveness.
func (r Report) Healthy() bool { return r.Store == StatusReachable }

type Checker struct {
	store       Pinger
	embeddings  Availability
	blobs       Enabler
	environment string
	timeout     time.Duration
	now         func() time.Time
}

func NewChecker(store Pinger, embeddings Availability, blobs Enabler, environment string) *Checker {
	return &Checker{
		store:       store,
		embeddings:  embeddings,
		blobs:       blobs,
		environment: environment,
		timeout:     2 * time.Second,
		now:         time.Now,
	}
}

func (c *Checker) Check(ctx context.Context) Report {
	r := Report{
		Store:       StatusUnreachable,
		Embeddings:  StatusUnavailable,
		BlobSink:    StatusUnavailable,
		Environment: c.environment,
		Timestamp:   c.now().UTC(),
	}

	pctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if c.store != nil && c.store.Ping(pctx) == nil {
		r.Store = StatusReachable
	}
	if c.embeddings != nil && c.embeddings.Available() {
		r.Embeddings = StatusAvailable
	}
	if c.blobs != nil && c.blobs.Enabled() {
		r.BlobSink = StatusAvailable
	}
	return r
}
