package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"domainintel/internal/analysis/models"
	"domainintel/internal/analysis/ports/mocks"
	"domainintel/internal/analysis/store"
	dErrors "domainintel/pkg/domain-errors"
	"domainintel/pkg/platform/sentinel"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type SubmitterSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *mocks.MockStore
	publisher *mocks.MockPublisher
	submitter *Submitter
}

func TestSubmitterSuite(t *testing.T) {
	suite.Run(t, new(SubmitterSuite))
}

func (s *SubmitterSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	var err error
	s.submitter, err = NewSubmitter(s.store, s.publisher, WithClock(func() time.Time { return fixedNow }))
	s.Require().NoError(err)
}

func (s *SubmitterSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *SubmitterSuite) TestRequiresDependencies() {
	_, err := NewSubmitter(nil, s.publisher)
	s.ErrorContains(err, "store is required")

	_, err = NewSubmitter(s.store, nil)
	s.ErrorContains(err, "publisher is required")
}

func (s *SubmitterSuite) TestInvalidDomainIsBadRequest() {
	_, err := s.submitter.Submit(context.Background(), "localhost")

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	s.NotEmpty(dErrors.MessageOf(err))
}

func (s *SubmitterSuite) TestNewDomainIsCreatedAndPublished() {
	s.store.EXPECT().Get(gomock.Any(), "acme.com").Return(nil, sentinel.ErrNotFound)
	s.store.EXPECT().Create(gomock.Any(), "acme.com", fixedNow).Return(true, nil)
	s.publisher.EXPECT().Publish(gomock.Any(), "acme.com").Return(nil)

	got, err := s.submitter.Submit(context.Background(), "  ACME.com ")

	s.Require().NoError(err)
	s.Equal(&Submission{Domain: "acme.com", Status: SubmissionInProgress}, got)
}

func (s *SubmitterSuite) TestLosingCreateDoesNotPublish() {
	s.store.EXPECT().Get(gomock.Any(), "acme.com").Return(nil, sentinel.ErrNotFound)
	s.store.EXPECT().Create(gomock.Any(), "acme.com", fixedNow).Return(false, nil)

	got, err := s.submitter.Submit(context.Background(), "acme.com")

	s.Require().NoError(err)
	s.Equal(SubmissionInProgress, got.Status)
}

func (s *SubmitterSuite) TestPendingIsInProgressWithoutPublish() {
	for _, status := range []models.Status{models.StatusPending, "analyzing"} {
		s.store.EXPECT().Get(gomock.Any(), "acme.com").
			Return(&models.DomainRecord{Domain: "acme.com", Status: status}, nil)

		got, err := s.submitter.Submit(context.Background(), "acme.com")

		s.Require().NoError(err)
		s.Equal(SubmissionInProgress, got.Status, "status %q", status)
		s.Nil(got.Summary)
	}
}

func (s *SubmitterSuite) TestCompletedReturnsSummary() {
	s.store.EXPECT().Get(gomock.Any(), "acme.com").Return(&models.DomainRecord{
		Domain:          "acme.com",
		Status:          models.StatusCompleted,
		ReputationRaw:   json.RawMessage(`{"data":{"attributes":{"last_analysis_stats":{"malicious":2,"harmless":60}}}}`),
		RegistrationRaw: json.RawMessage(`{"WhoisRecord":{"registrarName":"Acme Registrar"}}`),
	}, nil)

	got, err := s.submitter.Submit(context.Background(), "acme.com")

	s.Require().NoError(err)
	s.Equal(SubmissionCompleted, got.Status)
	s.Require().NotNil(got.Summary)
	s.Equal("acme.com", got.Summary.Domain)
	s.EqualValues(2, got.Summary.VT.Malicious)
	s.EqualValues(60, got.Summary.VT.Harmless)
	s.Equal("Acme Registrar", got.Summary.Whois.Registrar)
}

func (s *SubmitterSuite) TestCompletedWithCorruptPayloadIsInternal() {
	s.store.EXPECT().Get(gomock.Any(), "acme.com").Return(&models.DomainRecord{
		Domain:        "acme.com",
		Status:        models.StatusCompleted,
		ReputationRaw: json.RawMessage(`{not json`),
	}, nil)

	_, err := s.submitter.Submit(context.Background(), "acme.com")

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *SubmitterSuite) TestErrorRecordIsReopened() {
	s.store.EXPECT().Get(gomock.Any(), "acme.com").
		Return(&models.DomainRecord{Domain: "acme.com", Status: models.StatusError}, nil)
	s.store.EXPECT().Reopen(gomock.Any(), "acme.com", fixedNow).Return(true, nil)
	s.publisher.EXPECT().Publish(gomock.Any(), "acme.com").Return(nil)

	got, err := s.submitter.Submit(context.Background(), "acme.com")

	s.Require().NoError(err)
	s.Equal(SubmissionInProgress, got.Status)
}

func (s *SubmitterSuite) TestLosingReopenDoesNotPublish() {
	s.store.EXPECT().Get(gomock.Any(), "acme.com").
		Return(&models.DomainRecord{Domain: "acme.com", Status: models.StatusError}, nil)
	s.store.EXPECT().Reopen(gomock.Any(), "acme.com", fixedNow).Return(false, nil)

	got, err := s.submitter.Submit(context.Background(), "acme.com")

	s.Require().NoError(err)
	s.Equal(SubmissionInProgress, got.Status)
}

func (s *SubmitterSuite) TestPublishFailureAbandonsRecord() {
	s.store.EXPECT().Get(gomock.Any(), "acme.com").Return(nil, sentinel.ErrNotFound)
	s.store.EXPECT().Create(gomock.Any(), "acme.com", fixedNow).Return(true, nil)
	s.publisher.EXPECT().Publish(gomock.Any(), "acme.com").Return(errors.New("broker down"))
	s.store.EXPECT().
		Abandon(gomock.Any(), "acme.com", models.ErrorPayload("queue_unavailable"), fixedNow).
		Return(true, nil)

	_, err := s.submitter.Submit(context.Background(), "acme.com")

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *SubmitterSuite) TestStoreFailureIsInternal() {
	s.store.EXPECT().Get(gomock.Any(), "acme.com").Return(nil, sentinel.ErrUnavailable)

	_, err := s.submitter.Submit(context.Background(), "acme.com")

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.ErrorIs(err, sentinel.ErrUnavailable)
}

type countingPublisher struct {
	mu      sync.Mutex
	domains []string
}

func (p *countingPublisher) Publish(_ context.Context, domain string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.domains = append(p.domains, domain)
	return nil
}

func TestConcurrentSubmissionsPublishOnce(t *testing.T) {
	st := store.NewInMemory()
	pub := &countingPublisher{}
	submitter, err := NewSubmitter(st, pub)
	require.NoError(t, err)

	const callers = 32
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := submitter.Submit(context.Background(), "acme.com")
			assert.NoError(t, err)
			assert.Equal(t, SubmissionInProgress, got.Status)
		}()
	}
	wg.Wait()

	records, err := st.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, []string{"acme.com"}, pub.domains)
}

func TestConcurrentResubmissionOfErrorPublishesOnce(t *testing.T) {
	st := store.NewInMemory()
	st.Put(models.DomainRecord{
		Domain:          "acme.com",
		Status:          models.StatusError,
		ReputationRaw:   models.ErrorPayload("timeout"),
		RegistrationRaw: models.ErrorPayload("timeout"),
		CreatedAt:       fixedNow,
		UpdatedAt:       fixedNow,
	})
	pub := &countingPublisher{}
	submitter, err := NewSubmitter(st, pub)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := submitter.Submit(context.Background(), "acme.com")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, pub.domains, 1)
	rec, err := st.Get(context.Background(), "acme.com")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, rec.Status)
	assert.Nil(t, rec.ReputationRaw)
}
