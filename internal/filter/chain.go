// Package filter screens outgoing user content. A Chain runs inline stages
// before the content is stored and hands it to detached stages afterwards.
package filter

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"tangled.org/studyhub.social/warden/internal/apperr"
	"tangled.org/studyhub.social/warden/internal/metrics"
	"tangled.org/studyhub.social/warden/internal/moderation"
)

// ErrRejected is matched by every rejection raised by an inline stage.
var ErrRejected = errors.New("content rejected")

// Content is a piece of user-authored text moving through the chain.
type Content struct {
	ID       string // empty until the content is stored
	AuthorID string
	ItemType moderation.ItemType // what the stored content becomes; defaults to message
	Text     string
}

// Mode says when a stage runs relative to storing the content.
type Mode int

const (
	// Inline stages run before the content is stored and may reject it.
	Inline Mode = iota
	// Detached stages run after the content is stored, off the caller's path.
	Detached
)

func (m Mode) String() string {
	if m == Detached {
		return "detached"
	}
	return "inline"
}

// Stage is one step of the chain.
type Stage interface {
	Name() string
	Mode() Mode
	Check(ctx context.Context, c Content) error
}

// SaveFunc stores accepted content and returns its identifier.
type SaveFunc func(ctx context.Context, c Content) (string, error)

// Chain is an ordered list of stages.
type Chain struct {
	stages []Stage
}

// NewChain creates a chain that runs stages in the given order.
func NewChain(stages ...Stage) *Chain {
	return &Chain{stages: stages}
}

// Stages returns the stages in order.
func (c *Chain) Stages() []Stage {
	return append([]Stage(nil), c.stages...)
}

// FilterOutgoingContent runs the inline stages over text. It returns an error
// matching ErrRejected when a stage refuses it.
func (c *Chain) FilterOutgoingContent(ctx context.Context, text, authorID string) error {
	return c.runInline(ctx, Content{AuthorID: authorID, Text: text})
}

// Submit runs the inline stages, stores the content with save and then
// schedules the detached stages. It returns as soon as the content is
// stored; detached stages never affect the result.
func (c *Chain) Submit(ctx context.Context, content Content, save SaveFunc) (string, error) {
	if content.ItemType == "" {
		content.ItemType = moderation.ItemMessage
	}
	if err := c.runInline(ctx, content); err != nil {
		return "", err
	}

	id, err := save(ctx, content)
	if err != nil {
		return "", fmt.Errorf("failed to save content: %w", err)
	}
	content.ID = id

	for _, st := range c.stages {
		if st.Mode() != Detached {
			continue
		}
		if err := st.Check(ctx, content); err != nil {
			log.Warn().Err(err).Str("stage", st.Name()).Str("content_id", id).Msg("Detached stage could not be scheduled")
		}
	}
	return id, nil
}

func (c *Chain) runInline(ctx context.Context, content Content) error {
	for _, st := range c.stages {
		if st.Mode() != Inline {
			continue
		}
		if err := st.Check(ctx, content); err != nil {
			if errors.Is(err, ErrRejected) {
				metrics.ContentRejectedTotal.Inc()
			}
			return err
		}
	}
	return nil
}

// rejected builds the error returned for refused content.
func rejected(stage string) error {
	return apperr.Wrap(apperr.ErrValidation, "filter_content", "content contains a disallowed term", fmt.Errorf("%w by %s stage", ErrRejected, stage))
}
