package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/AutoSherpa/internal/dialogue"
	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// Link is one named classifier in a Chain.
type Link struct {
	Name       string
	Classifier dialogue.Classifier
}

// Chain tries its links in order. The first result with a recognised intent
// wins. When no link recognises the message the first successful result is
// returned, and when every link fails their errors are joined.
//
// Entities found by earlier links are kept when a later link omits them.
type Chain struct {
	links   []Link
	timeout time.Duration
}

var _ dialogue.Classifier = (*Chain)(nil)

// NewChain creates a chain. A positive timeout bounds each link separately.
func NewChain(timeout time.Duration, links ...Link) *Chain {
	return &Chain{links: links, timeout: timeout}
}

// Classify runs the links until one is conclusive.
func (c *Chain) Classify(ctx context.Context, message string, sess *models.Session) (models.Classification, error) {
	var (
		fallback *models.Classification
		errs     []error
		seen     = make(map[string]string)
	)
	for _, link := range c.links {
		cls, err := c.run(ctx, link, message, sess)
		if err != nil {
			slog.Warn("Chain.Classify: link failed", "link", link.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", link.Name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		cls.Entities = mergeMissing(cls.Entities, seen)
		if cls.Intent != models.IntentOther {
			slog.Debug("Chain.Classify: conclusive", "link", link.Name, "intent", cls.Intent, "confidence", cls.Confidence)
			return cls, nil
		}
		seen = cls.Entities
		if fallback == nil {
			fallback = &cls
		}
	}
	if fallback != nil {
		fallback.Entities = mergeMissing(fallback.Entities, seen)
		return *fallback, nil
	}
	if len(errs) == 0 {
		return models.Unclassified(), nil
	}
	return models.Classification{}, errors.Join(errs...)
}

func (c *Chain) run(ctx context.Context, link Link, message string, sess *models.Session) (models.Classification, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return link.Classifier.Classify(ctx, message, sess)
}

// mergeMissing returns dst with every key from src it does not already have.
func mergeMissing(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	out := make(map[string]string, len(dst)+len(src))
	for k, v := range src {
		out[k] = v
	}
	for k, v := range dst {
		out[k] = v
	}
	return out
}
