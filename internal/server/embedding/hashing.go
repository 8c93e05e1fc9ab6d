package embedding

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/dmitrijs2005/docingest/internal/common"
)

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// Hashing is a local, deterministic feature-hashing embedder: each token and
// adjacent token pair is hashed into one of Dimension buckets with a hashed
// sign, and the result is L2-normalized. Texts sharing vocabulary end up close
// under cosine distance.
type Hashing struct {
	dim int
}

func NewHashing() *Hashing {
	return &Hashing{dim: Dimension}
}

func (h *Hashing) Available() bool { return true }
func (h *Hashing) Dimension() int  { return h.dim }

func (h *Hashing) Embed(ctx context.Context, text string) Result {
	if err := ctx.Err(); err != nil {
		return Result{Err: fmt.Errorf("%w: %w", common.ErrEmbeddingUnavailable, err)}
	}

	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		if strings.TrimSpace(text) == "" {
			return Result{Err: fmt.Errorf("%w: empty text", common.ErrEmbeddingUnavailable)}
		}
		tokens = []string{strings.TrimSpace(text)}
	}

	vec := make([]float32, h.dim)
	for i, tok := range tokens {
		h.add(vec, tok, 1)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return Result{Err: fmt.Errorf("%w: zero vector", common.ErrEmbeddingUnavailable)}
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return Result{Vector: vec}
}

func (h *Hashing) add(vec []float32, feature string, weight float32) {
	sum := xxhash.Sum64String(feature)
	idx := sum % uint64(h.dim)
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
