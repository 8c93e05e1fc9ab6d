// Package extraction turns arbitrary ingested bytes into a text
// representation. Text media is decoded; other formats get a placeholder that
// names the source file. Extract never returns empty text and never panics.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/docingest/internal/common"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultMaxTextBytes caps how many raw bytes of text are decoded, 100 MiB,
// matching the largest file screening accepts. Longer text is truncated and
// the result marked degraded.
const DefaultMaxTextBytes = 100 * 1024 * 1024

const mediaTypePDF = "application/pdf"

// Source describes the content to extract. Open is called at most once.
type Source struct {
	Name      string
	MediaType string
	Open      func() (io.ReadCloser, error)
}

// Result is the extraction outcome. Degraded is set whenever Text is a
// placeholder. Err is set, wrapping common.ErrExtractionDegraded, only when
// the placeholder replaced a failure.
type Result struct {
	Text     string
	Degraded bool
	Err      error
}

type rule struct {
	match   func(mediaType string) bool
	extract func(ctx context.Context, e *Extractor, src Source) Result
}

// Extractor dispatches on media type; the first matching rule wins.
type Extractor struct {
	MaxTextBytes int64
	rules        []rule
}

func New() *Extractor {
	e := &Extractor{MaxTextBytes: DefaultMaxTextBytes}
	e.rules = []rule{
		{match: func(mt string) bool { return strings.HasPrefix(mt, "text/") }, extract: decodeText},
		{match: func(mt string) bool { return mt == mediaTypePDF }, extract: placeholder("[PDF content from %s]")},
		{match: func(mt string) bool { return strings.HasPrefix(mt, "image/") }, extract: placeholder("[Image content from %s]")},
		{match: func(string) bool { return true }, extract: placeholder("[Binary file: %s]")},
	}
	return e
}

func (e *Extractor) Extract(ctx context.Context, src Source) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = failed(fmt.Errorf("panic: %v", p))
		}
	}()

	mt := strings.ToLower(src.MediaType)
	for _, r := range e.rules {
		if r.match(mt) {
			return r.extract(ctx, e, src)
		}
	}
	return placeholder("[Binary file: %s]")(ctx, e, src)
}

func placeholder(format string) func(context.Context, *Extractor, Source) Result {
	return func(_ context.Context, _ *Extractor, src Source) Result {
		return Result{Text: fmt.Sprintf(format, src.Name), Degraded: true}
	}
}

// decodeText streams the source through a UTF-8 decoder that replaces
// invalid sequences with U+FFFD. Once started it runs to completion.
func decodeText(_ context.Context, e *Extractor, src Source) Result {
	if src.Open == nil {
		return failed(errors.New("no content"))
	}
	rc, err := src.Open()
	if err != nil {
		return failed(err)
	}
	defer rc.Close()

	limit := e.MaxTextBytes
	if limit <= 0 {
		limit = DefaultMaxTextBytes
	}

	lr := &io.LimitedReader{R: rc, N: limit}
	dec := transform.NewReader(lr, unicode.UTF8.NewDecoder())
	var sb strings.Builder
	if _, err := io.Copy(&sb, dec); err != nil {
		return failed(err)
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return Result{Text: fmt.Sprintf("[Empty text file: %s]", src.Name), Degraded: true}
	}

	if lr.N == 0 {
		var one [1]byte
		if n, _ := io.ReadFull(rc, one[:]); n > 0 {
			return Result{
				Text:     text,
				Degraded: true,
				Err:      fmt.Errorf("%w: text truncated at %d bytes", common.ErrExtractionDegraded, limit),
			}
		}
	}
	return Result{Text: text}
}

func failed(err error) Result {
	return Result{
		Text:     fmt.Sprintf("[Text extraction failed: %v]", err),
		Degraded: true,
		Err:      fmt.Errorf("%w: %w", common.ErrExtractionDegraded, err),
	}
}
