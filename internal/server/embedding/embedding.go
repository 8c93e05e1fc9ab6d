// Package embedding turns text into fixed-dimension vectors. Generators never
// panic or return bare errors past their boundary: failures come back as a
// Result whose Err wraps common.ErrEmbeddingUnavailable.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/docingest/internal/common"
	"github.com/dmitrijs2005/docingest/internal/logging"
)

// Dimension is the length of every vector produced or stored.
const Dimension = common.EmbeddingDimension

const (
	ProviderOpenAI  = "openai"
	ProviderHashing = "hashing"
	ProviderNone    = "none"
)

// Result is either a vector of length Dimension or an error.
type Result struct {
	Vector []float32
	Err    error
}

// OK reports whether the result carries a vector.
func (r Result) OK() bool { return r.Err == nil && len(r.Vector) > 0 }

// Generator is safe for concurrent use. Embed may block for a long time.
type Generator interface {
	Embed(ctx context.Context, text string) Result
	Available() bool
	Dimension() int
}

// Config selects and configures a Generator.
type Config struct {
	Provider  string
	BaseURL   string
	Model     string
	APIKeyEnv string
	Timeout   time.Duration
}

// New builds the configured generator. Initialization failures are logged and
// yield an Unavailable generator so the service can start with search
// disabled.
func New(cfg Config, logger logging.Logger) Generator {
	logger = logger.With("module", "embedding")
	ctx := context.Background()

	var (
		g   Generator
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI:
		g, err = NewOpenAIClient(cfg)
	case ProviderHashing, "":
		g = NewHashing()
	case ProviderNone:
		err = errors.New("embeddings disabled by configuration")
	default:
		err = fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		logger.Warn(ctx, "embedding generator unavailable, search disabled", "provider", cfg.Provider, "error", err)
		return Unavailable{Reason: err.Error()}
	}

	logger.Info(ctx, "embedding generator ready", "provider", cfg.Provider, "dimension", g.Dimension())
	return Guard(g)
}

// Unavailable is the generator used when no model could be initialized.
type Unavailable struct {
	Reason string
}

func (u Unavailable) Embed(context.Context, string) Result {
	return Result{Err: u.err()}
}

func (u Unavailable) Available() bool { return false }
func (u Unavailable) Dimension() int  { return Dimension }

func (u Unavailable) err() error {
	if u.Reason == "" {
		return common.ErrEmbeddingUnavailable
	}
	return fmt.Errorf("%w: %s", common.ErrEmbeddingUnavailable, u.Reason)
}

type guarded struct {
	Generator
}

// Guard wraps g so that a panic inside Embed, or a vector of the wrong
// length, becomes an unavailable Result.
func Guard(g Generator) Generator {
	if _, ok := g.(guarded); ok {
		return g
	}
	return guarded{Generator: g}
}

func (g guarded) Embed(ctx context.Context, text string) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{Err: fmt.Errorf("%w: panic: %v", common.ErrEmbeddingUnavailable, p)}
		}
	}()

	res = g.Generator.Embed(ctx, text)
	if res.Err != nil {
		if !errors.Is(res.Err, common.ErrEmbeddingUnavailable) {
			res.Err = fmt.Errorf("%w: %w", common.ErrEmbeddingUnavailable, res.Err)
		}
		res.Vector = nil
		return res
	}
	if len(res.Vector) != g.Dimension() {
		return Result{Err: fmt.Errorf("%w: got %d dimensions, want %d",
			common.ErrEmbeddingUnavailable, len(res.Vector), g.Dimension())}
	}
	return res
}
