package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"domainintel/internal/analysis/models"
	"domainintel/internal/analysis/ports"
	"domainintel/internal/platform/sqlite"
	"domainintel/pkg/platform/sentinel"
)

// StoreSuite is run against every Store implementation.
type StoreSuite struct {
	suite.Suite
	newStore func() ports.Store
	store    ports.Store
	ctx      context.Context
	now      time.Time
}

func (s *StoreSuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func() ports.Store { return NewInMemory() }})
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func() ports.Store {
		db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "store.db"))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		return NewSQLite(db)
	}})
}

func (s *StoreSuite) completed(scanned time.Time) models.AnalysisResult {
	return models.AnalysisResult{
		Status:          models.StatusCompleted,
		ReputationRaw:   json.RawMessage(`{"data":{"id":"acme.com"}}`),
		RegistrationRaw: json.RawMessage(`{"WhoisRecord":{"domainName":"acme.com"}}`),
		ScannedAt:       scanned,
	}
}

func (s *StoreSuite) TestCreate() {
	s.Run("inserts a pending record once", func() {
		created, err := s.store.Create(s.ctx, "acme.com", s.now)
		s.Require().NoError(err)
		s.True(created)

		created, err = s.store.Create(s.ctx, "acme.com", s.now.Add(time.Minute))
		s.Require().NoError(err)
		s.False(created)

		rec, err := s.store.Get(s.ctx, "acme.com")
		s.Require().NoError(err)
		s.Equal("acme.com", rec.Domain)
		s.Equal(models.StatusPending, rec.Status)
		s.Nil(rec.ReputationRaw)
		s.Nil(rec.RegistrationRaw)
		s.Nil(rec.LastScanAt)
		s.WithinDuration(s.now, rec.CreatedAt, time.Millisecond)
		s.WithinDuration(s.now, rec.UpdatedAt, time.Millisecond)
	})

	s.Run("concurrent creates insert exactly one record", func() {
		const goroutines = 20
		var wg sync.WaitGroup
		var inserted atomic.Int32
		for range goroutines {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.store.Create(s.ctx, "race.com", s.now)
				if err == nil && ok {
					inserted.Add(1)
				}
			}()
		}
		wg.Wait()
		s.Equal(int32(1), inserted.Load())
	})
}

func (s *StoreSuite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, "missing.com")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestSaveResult() {
	s.Run("completes a pending record", func() {
		_, err := s.store.Create(s.ctx, "acme.com", s.now)
		s.Require().NoError(err)

		scanned := s.now.Add(time.Minute)
		s.Require().NoError(s.store.SaveResult(s.ctx, "acme.com", s.completed(scanned)))

		rec, err := s.store.Get(s.ctx, "acme.com")
		s.Require().NoError(err)
		s.Equal(models.StatusCompleted, rec.Status)
		s.JSONEq(`{"data":{"id":"acme.com"}}`, string(rec.ReputationRaw))
		s.JSONEq(`{"WhoisRecord":{"domainName":"acme.com"}}`, string(rec.RegistrationRaw))
		s.Require().NotNil(rec.LastScanAt)
		s.WithinDuration(scanned, *rec.LastScanAt, time.Millisecond)
		s.WithinDuration(scanned, rec.UpdatedAt, time.Millisecond)
		s.WithinDuration(s.now, rec.CreatedAt, time.Millisecond)
	})

	s.Run("records error results with placeholders", func() {
		_, err := s.store.Create(s.ctx, "broken.com", s.now)
		s.Require().NoError(err)

		placeholder := models.ErrorPayload("timeout")
		s.Require().NoError(s.store.SaveResult(s.ctx, "broken.com", models.AnalysisResult{
			Status:          models.StatusError,
			ReputationRaw:   placeholder,
			RegistrationRaw: placeholder,
			ScannedAt:       s.now,
		}))

		rec, err := s.store.Get(s.ctx, "broken.com")
		s.Require().NoError(err)
		s.Equal(models.StatusError, rec.Status)
		s.JSONEq(`{"error":"timeout"}`, string(rec.ReputationRaw))
		s.NotNil(rec.LastScanAt)
	})

	s.Run("missing record", func() {
		err := s.store.SaveResult(s.ctx, "missing.com", s.completed(s.now))
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *StoreSuite) TestReopen() {
	s.Run("moves an error record back to pending", func() {
		_, err := s.store.Create(s.ctx, "retry.com", s.now)
		s.Require().NoError(err)
		placeholder := models.ErrorPayload("timeout")
		s.Require().NoError(s.store.SaveResult(s.ctx, "retry.com", models.AnalysisResult{
			Status: models.StatusError, ReputationRaw: placeholder, RegistrationRaw: placeholder, ScannedAt: s.now,
		}))

		reopened, err := s.store.Reopen(s.ctx, "retry.com", s.now.Add(time.Hour))
		s.Require().NoError(err)
		s.True(reopened)

		rec, err := s.store.Get(s.ctx, "retry.com")
		s.Require().NoError(err)
		s.Equal(models.StatusPending, rec.Status)
		s.Nil(rec.ReputationRaw)
		s.Nil(rec.RegistrationRaw)

		reopened, err = s.store.Reopen(s.ctx, "retry.com", s.now.Add(time.Hour))
		s.Require().NoError(err)
		s.False(reopened, "only one caller wins the transition")
	})

	s.Run("leaves completed records alone", func() {
		_, err := s.store.Create(s.ctx, "done.com", s.now)
		s.Require().NoError(err)
		s.Require().NoError(s.store.SaveResult(s.ctx, "done.com", s.completed(s.now)))

		reopened, err := s.store.Reopen(s.ctx, "done.com", s.now)
		s.Require().NoError(err)
		s.False(reopened)

		rec, err := s.store.Get(s.ctx, "done.com")
		s.Require().NoError(err)
		s.Equal(models.StatusCompleted, rec.Status)
	})

	s.Run("missing record", func() {
		reopened, err := s.store.Reopen(s.ctx, "missing.com", s.now)
		s.Require().NoError(err)
		s.False(reopened)
	})
}

func (s *StoreSuite) TestAbandon() {
	s.Run("moves a pending record to error without a scan time", func() {
		_, err := s.store.Create(s.ctx, "stuck.com", s.now)
		s.Require().NoError(err)

		abandoned, err := s.store.Abandon(s.ctx, "stuck.com", models.ErrorPayload("queue_unavailable"), s.now.Add(time.Second))
		s.Require().NoError(err)
		s.True(abandoned)

		rec, err := s.store.Get(s.ctx, "stuck.com")
		s.Require().NoError(err)
		s.Equal(models.StatusError, rec.Status)
		s.JSONEq(`{"error":"queue_unavailable"}`, string(rec.RegistrationRaw))
		s.Nil(rec.LastScanAt)
	})

	s.Run("ignores records that are not pending", func() {
		_, err := s.store.Create(s.ctx, "done.com", s.now)
		s.Require().NoError(err)
		s.Require().NoError(s.store.SaveResult(s.ctx, "done.com", s.completed(s.now)))

		abandoned, err := s.store.Abandon(s.ctx, "done.com", models.ErrorPayload("queue_unavailable"), s.now)
		s.Require().NoError(err)
		s.False(abandoned)
	})
}

func (s *StoreSuite) TestList() {
	for i, d := range []string{"first.com", "second.com", "third.com"} {
		_, err := s.store.Create(s.ctx, d, s.now.Add(time.Duration(i)*time.Second))
		s.Require().NoError(err)
	}
	s.Require().NoError(s.store.SaveResult(s.ctx, "first.com", s.completed(s.now.Add(time.Hour))))

	records, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 3)
	s.Equal("third.com", records[0].Domain)
	s.Equal("second.com", records[1].Domain)
	s.Equal("first.com", records[2].Domain)
	s.Equal(models.StatusCompleted, records[2].Status)
}

func (s *StoreSuite) TestPing() {
	s.NoError(s.store.Ping(s.ctx))
}
