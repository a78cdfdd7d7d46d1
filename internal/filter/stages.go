package filter

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"tangled.org/studyhub.social/warden/internal/classifier"
	"tangled.org/studyhub.social/warden/internal/metrics"
	"tangled.org/studyhub.social/warden/internal/moderation"
	"tangled.org/studyhub.social/warden/internal/worker"
)

// BlockingStage rejects content containing any dictionary term.
type BlockingStage struct {
	dict *Dictionary
}

// NewBlockingStage creates a blocking stage over dict.
func NewBlockingStage(dict *Dictionary) *BlockingStage {
	return &BlockingStage{dict: dict}
}

func (s *BlockingStage) Name() string { return "dictionary" }
func (s *BlockingStage) Mode() Mode   { return Inline }

// Check rejects c when it contains a dictionary word or phrase.
func (s *BlockingStage) Check(ctx context.Context, c Content) error {
	if term, ok := s.dict.Match(c.Text); ok {
		log.Debug().Str("author", c.AuthorID).Str("term", term).Msg("Content blocked by dictionary")
		return rejected(s.Name())
	}
	return nil
}

// Classifier judges content. contentID is used for tracing only.
type Classifier interface {
	Classify(ctx context.Context, contentID, text string) (*classifier.Verdict, error)
}

// ReportCreator files the automatic report for flagged content.
type ReportCreator interface {
	CreateReport(ctx context.Context, in moderation.CreateReportInput, reporterID string) (*moderation.Report, error)
}

// Scheduler runs detached tasks.
type Scheduler interface {
	Submit(name string, task worker.Task) bool
}

// ClassificationStage sends stored content to the classifier in the
// background. Flagged terms are learned by the dictionary and the content is
// reported under the system identity.
type ClassificationStage struct {
	classifier Classifier
	dict       *Dictionary
	reports    ReportCreator
	scheduler  Scheduler
}

// NewClassificationStage creates a detached classification stage.
func NewClassificationStage(c Classifier, dict *Dictionary, reports ReportCreator, scheduler Scheduler) *ClassificationStage {
	return &ClassificationStage{
		classifier: c,
		dict:       dict,
		reports:    reports,
		scheduler:  scheduler,
	}
}

func (s *ClassificationStage) Name() string { return "classification" }
func (s *ClassificationStage) Mode() Mode   { return Detached }

// Check schedules classification of c and returns immediately. The returned
// error only reports that the task could not be scheduled.
func (s *ClassificationStage) Check(_ context.Context, c Content) error {
	if c.ID == "" {
		return fmt.Errorf("content has no id")
	}
	if !s.scheduler.Submit("classify:"+c.ID, func(ctx context.Context) error {
		return s.Classify(ctx, c)
	}) {
		return fmt.Errorf("classification queue unavailable")
	}
	return nil
}

// Classify runs one classification synchronously. The worker pool calls it
// inside its error boundary.
func (s *ClassificationStage) Classify(ctx context.Context, c Content) error {
	verdict, err := s.classifier.Classify(ctx, c.ID, c.Text)
	if err != nil {
		metrics.ClassificationsTotal.WithLabelValues("error").Inc()
		return err
	}
	if !verdict.IsBad {
		metrics.ClassificationsTotal.WithLabelValues("clean").Inc()
		return nil
	}
	metrics.ClassificationsTotal.WithLabelValues("flagged").Inc()

	for _, word := range verdict.BadWords {
		added, err := s.dict.Add(ctx, word)
		if err != nil {
			continue
		}
		if added {
			metrics.DictionaryTermsLearnedTotal.Inc()
			log.Info().Str("term", NormalizeTerm(word)).Str("content_id", c.ID).Msg("Dictionary learned term")
		}
	}

	itemType := c.ItemType
	if itemType == "" {
		itemType = moderation.ItemMessage
	}
	report, err := s.reports.CreateReport(ctx, moderation.CreateReportInput{
		ItemID:   c.ID,
		ItemType: itemType,
		Type:     moderation.ReportTypeViolatedContent,
		Content:  autoReportContent(verdict),
	}, moderation.SystemReporterID)
	if err != nil {
		return fmt.Errorf("failed to create automatic report for %s: %w", c.ID, err)
	}

	log.Info().
		Str("content_id", c.ID).
		Str("author", c.AuthorID).
		Str("report_id", report.ID).
		Str("severity", string(verdict.Severity)).
		Msg("Content flagged by classifier")
	return nil
}

func autoReportContent(v *classifier.Verdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Automatically flagged (%s severity)", v.Severity)
	if v.Reason != "" {
		b.WriteString(": ")
		b.WriteString(v.Reason)
	}
	if len(v.BadWords) > 0 {
		b.WriteString(". Terms: ")
		b.WriteString(strings.Join(v.BadWords, ", "))
	}
	return b.String()
}
