package service

import (
	"context"
	"errors"

	"domainintel/internal/analysis/models"
	"domainintel/internal/analysis/normalizer"
	"domainintel/internal/analysis/ports"
	"domainintel/internal/analysis/validator"
	dErrors "domainintel/pkg/domain-errors"
	"domainintel/pkg/platform/sentinel"
)

// Submission statuses reported to callers.
const (
	SubmissionCompleted  = "completed"
	SubmissionInProgress = "in_progress"
)

// placeholderQueueUnavailable is stored when a job could not be enqueued.
const placeholderQueueUnavailable = "queue_unavailable"

// Submission is the gate's answer for one domain. Summary is set only when
// Status is SubmissionCompleted.
type Submission struct {
	Domain  string
	Status  string
	Summary *models.Summary
}

// Submitter is the job submission gate. It decides per domain whether to
// answer from the store or to enqueue a new analysis, and guarantees that
// at most one caller enqueues a given analysis cycle.
type Submitter struct {
	store     ports.Store
	publisher ports.Publisher
	options
}

func NewSubmitter(store ports.Store, publisher ports.Publisher, opts ...Option) (*Submitter, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	return &Submitter{store: store, publisher: publisher, options: newOptions(opts)}, nil
}

// Submit validates input and runs the gate. Validation failures carry
// dErrors.CodeBadRequest with the rejection reason; every other failure is
// dErrors.CodeInternal.
func (s *Submitter) Submit(ctx context.Context, input string) (*Submission, error) {
	domain, err := validator.Validate(input)
	if err != nil {
		s.metrics.IncrementSubmission("invalid")
		var ve *validator.Error
		if errors.As(err, &ve) {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, ve.Reason)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid domain")
	}

	sub, err := s.gate(ctx, domain)
	if err != nil {
		s.metrics.IncrementSubmission("failed")
		return nil, err
	}
	s.metrics.IncrementSubmission(sub.Status)
	return sub, nil
}

func (s *Submitter) gate(ctx context.Context, domain string) (*Submission, error) {
	inProgress := &Submission{Domain: domain, Status: SubmissionInProgress}

	rec, err := s.store.Get(ctx, domain)
	if errors.Is(err, sentinel.ErrNotFound) {
		created, err := s.store.Create(ctx, domain, s.now())
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create domain record")
		}
		if created {
			if err := s.enqueue(ctx, domain); err != nil {
				return nil, err
			}
		}
		return inProgress, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load domain record")
	}

	switch rec.Status {
	case models.StatusCompleted:
		summary, err := normalizer.Normalize(domain, rec.ReputationRaw, rec.RegistrationRaw)
		if err != nil {
			s.logger.ErrorContext(ctx, "stored analysis is unreadable", "domain", domain, "error", err)
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to parse stored data")
		}
		return &Submission{Domain: domain, Status: SubmissionCompleted, Summary: &summary}, nil

	case models.StatusError:
		reopened, err := s.store.Reopen(ctx, domain, s.now())
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reopen domain record")
		}
		if reopened {
			if err := s.enqueue(ctx, domain); err != nil {
				return nil, err
			}
		}
		return inProgress, nil

	default:
		return inProgress, nil
	}
}

// enqueue publishes a job for a record this caller just moved to pending.
// On failure the record is abandoned to error so the next submission can
// retry it.
func (s *Submitter) enqueue(ctx context.Context, domain string) error {
	err := s.publisher.Publish(ctx, domain)
	if err == nil {
		s.logger.InfoContext(ctx, "domain submitted for analysis", "domain", domain)
		return nil
	}

	s.logger.ErrorContext(ctx, "failed to enqueue analysis", "domain", domain, "error", err)

	placeholder := models.ErrorPayload(placeholderQueueUnavailable)
	if _, abandonErr := s.store.Abandon(context.WithoutCancel(ctx), domain, placeholder, s.now()); abandonErr != nil {
		s.logger.ErrorContext(ctx, "failed to abandon pending record",
			"domain", domain,
			"error", abandonErr,
		)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to submit domain for analysis")
}
