//go:build integration

package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"civicdesk/internal/complaint/access"
	"civicdesk/internal/complaint/models"
	"civicdesk/internal/complaint/store"
	staffmodels "civicdesk/internal/staff/models"
	staffstore "civicdesk/internal/staff/store"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
	"civicdesk/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	now      time.Time
	dept     id.DepartmentID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "complaints", "departments", "complaint_sequences"))

	s.now = time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	s.dept = id.DepartmentID(uuid.New())
	s.Require().NoError(staffstore.NewPostgres(s.postgres.DB).CreateDepartment(ctx, &staffmodels.Department{
		ID:        s.dept,
		Name:      "Roads",
		IsActive:  true,
		CreatedAt: s.now,
	}))
}

func (s *PostgresStoreSuite) newComplaint(ref string, citizen id.UserID, dept *id.DepartmentID, createdAt time.Time) *models.Complaint {
	c, err := models.NewComplaint(id.ComplaintID(uuid.New()), ref, citizen, models.CreateRequest{
		Type:         "Roads",
		Location:     "Main St",
		Description:  "Pothole near " + ref,
		DepartmentID: dept,
	}, createdAt)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(context.Background(), c))
	return c
}

func (s *PostgresStoreSuite) TestCreateRejectsDuplicateReference() {
	ctx := context.Background()
	s.newComplaint("C202503150001", id.UserID(uuid.New()), &s.dept, s.now)

	dup, err := models.NewComplaint(id.ComplaintID(uuid.New()), "C202503150001", id.UserID(uuid.New()), models.CreateRequest{
		Type: "Roads", Location: "x", Description: "y",
	}, s.now)
	s.Require().NoError(err)
	s.ErrorIs(s.store.Create(ctx, dup), sentinel.ErrAlreadyUsed)
}

func (s *PostgresStoreSuite) TestUnknownDepartmentIsNotFound() {
	ctx := context.Background()
	unknown := id.DepartmentID(uuid.New())

	s.Run("create", func() {
		c, err := models.NewComplaint(id.ComplaintID(uuid.New()), "C202503150002", id.UserID(uuid.New()), models.CreateRequest{
			Type: "Roads", Location: "x", Description: "y", DepartmentID: &unknown,
		}, s.now)
		s.Require().NoError(err)
		s.ErrorIs(s.store.Create(ctx, c), sentinel.ErrNotFound)
	})

	s.Run("update", func() {
		c := s.newComplaint("C202503150003", id.UserID(uuid.New()), &s.dept, s.now)
		c.ApplyPatch(models.UpdatePatch{DepartmentID: &unknown}, s.now.Add(time.Minute))
		s.ErrorIs(s.store.Update(ctx, c), sentinel.ErrNotFound)

		found, err := s.store.FindByID(ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(s.dept, *found.DepartmentID)
	})
}

// TestConcurrentAcquire verifies the conditional update grants a live lease
// to exactly one of many competing employees.
func (s *PostgresStoreSuite) TestConcurrentAcquire() {
	ctx := context.Background()
	c := s.newComplaint("C202503150001", id.UserID(uuid.New()), &s.dept, s.now)
	const goroutines = 20

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
		locked  atomic.Int32
		winner  atomic.Value
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			holder := id.UserID(uuid.New())
			_, err := s.store.TryAcquire(ctx, c.ID, holder, false, s.now, s.now.Add(15*time.Minute))
			switch {
			case err == nil:
				granted.Add(1)
				winner.Store(holder)
			case errors.Is(err, sentinel.ErrLocked):
				locked.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), granted.Load(), "exactly one holder should win")
	s.Equal(int32(goroutines-1), locked.Load())

	found, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.True(found.IsLocked)
	s.Equal(winner.Load().(id.UserID), *found.LockedBy)
}

func (s *PostgresStoreSuite) TestLeaseLifecycle() {
	ctx := context.Background()
	c := s.newComplaint("C202503150001", id.UserID(uuid.New()), &s.dept, s.now)
	holder := id.UserID(uuid.New())
	other := id.UserID(uuid.New())
	expiry := s.now.Add(15 * time.Minute)

	s.Run("holder acquires", func() {
		got, err := s.store.TryAcquire(ctx, c.ID, holder, false, s.now, expiry)
		s.Require().NoError(err)
		s.True(got.LockExpiresAt.Equal(expiry))
	})

	s.Run("re-acquire keeps the original lock time", func() {
		got, err := s.store.TryAcquire(ctx, c.ID, holder, false, s.now.Add(time.Minute), expiry.Add(time.Minute))
		s.Require().NoError(err)
		s.True(got.LockedAt.Equal(s.now))
	})

	s.Run("other user is rejected while the lease is live", func() {
		_, err := s.store.TryAcquire(ctx, c.ID, other, false, s.now.Add(2*time.Minute), expiry)
		s.ErrorIs(err, sentinel.ErrLocked)
		_, err = s.store.TryRenew(ctx, c.ID, other, s.now.Add(2*time.Minute), expiry)
		s.ErrorIs(err, sentinel.ErrLocked)
	})

	s.Run("expired lease is taken over", func() {
		later := s.now.Add(time.Hour)
		got, err := s.store.TryAcquire(ctx, c.ID, other, false, later, later.Add(15*time.Minute))
		s.Require().NoError(err)
		s.Equal(other, *got.LockedBy)
		s.True(got.LockedAt.Equal(later))
	})

	s.Run("override releases a live lease", func() {
		got, err := s.store.TryRelease(ctx, c.ID, holder, true, s.now.Add(time.Hour))
		s.Require().NoError(err)
		s.False(got.IsLocked)
		s.Nil(got.LockedBy)
	})

	s.Run("renew without a lease is invalid", func() {
		_, err := s.store.TryRenew(ctx, c.ID, holder, s.now.Add(time.Hour), expiry)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("missing complaint is not found", func() {
		_, err := s.store.TryAcquire(ctx, id.ComplaintID(uuid.New()), holder, false, s.now, expiry)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestListAndCount() {
	ctx := context.Background()
	citizenA := id.UserID(uuid.New())
	citizenB := id.UserID(uuid.New())
	for i := 1; i <= 12; i++ {
		s.newComplaint(fmt.Sprintf("C20250315%04d", i), citizenA, &s.dept, s.now.Add(time.Duration(i)*time.Minute))
	}
	last := s.newComplaint("C202503150013", citizenB, nil, s.now.Add(time.Hour))

	inProgress := models.StatusInProgress
	last.ApplyPatch(models.UpdatePatch{Status: &inProgress}, s.now.Add(2*time.Hour))
	s.Require().NoError(s.store.Update(ctx, last))

	s.Run("newest first with paging", func() {
		page, total, err := s.store.List(ctx, access.ListScope{}, models.Filter{}.Normalize())
		s.Require().NoError(err)
		s.Equal(13, total)
		s.Len(page, models.DefaultLimit)
		s.Equal("C202503150013", page[0].ReferenceNumber)
	})

	s.Run("citizen scope", func() {
		page, total, err := s.store.List(ctx, access.ListScope{CitizenID: &citizenB}, models.Filter{}.Normalize())
		s.Require().NoError(err)
		s.Equal(1, total)
		s.Equal(citizenB, page[0].CitizenID)
	})

	s.Run("search matches reference and description case-insensitively", func() {
		_, total, err := s.store.List(ctx, access.ListScope{}, models.Filter{Search: "POTHOLE near c20250315000"}.Normalize())
		s.Require().NoError(err)
		s.Equal(9, total)
	})

	s.Run("search treats wildcards literally", func() {
		_, total, err := s.store.List(ctx, access.ListScope{}, models.Filter{Search: "%"}.Normalize())
		s.Require().NoError(err)
		s.Zero(total)
	})

	s.Run("status counts follow the scope", func() {
		counts, err := s.store.CountByStatus(ctx, access.ListScope{})
		s.Require().NoError(err)
		s.Equal(12, counts[models.StatusNew])
		s.Equal(1, counts[models.StatusInProgress])

		counts, err = s.store.CountByStatus(ctx, access.ListScope{DepartmentID: &s.dept})
		s.Require().NoError(err)
		s.Equal(12, counts[models.StatusNew])
		s.Zero(counts[models.StatusInProgress])
	})
}

func (s *PostgresStoreSuite) TestHistoryAndComments() {
	ctx := context.Background()
	c := s.newComplaint("C202503150001", id.UserID(uuid.New()), &s.dept, s.now)
	s.Require().NoError(s.store.AppendHistory(ctx, models.NewCreatedEntry(c, s.now)))

	author := id.UserID(uuid.New())
	for i, internal := range []bool{false, true, false} {
		s.Require().NoError(s.store.AddComment(ctx, &models.Comment{
			ID:          id.CommentID(uuid.New()),
			ComplaintID: c.ID,
			AuthorID:    author,
			Content:     fmt.Sprintf("note %d", i),
			IsInternal:  internal,
			CreatedAt:   s.now.Add(time.Duration(i) * time.Minute),
		}))
	}

	s.Run("internal comments are filtered for citizens", func() {
		public, err := s.store.ListComments(ctx, c.ID, false)
		s.Require().NoError(err)
		s.Len(public, 2)

		all, err := s.store.ListComments(ctx, c.ID, true)
		s.Require().NoError(err)
		s.Len(all, 3)
		s.Equal("note 2", all[0].Content)
	})

	s.Run("delete cascades", func() {
		s.Require().NoError(s.store.Delete(ctx, c.ID))
		history, err := s.store.ListHistory(ctx, c.ID, models.HistoryLimit)
		s.Require().NoError(err)
		s.Empty(history)
		s.ErrorIs(s.store.Delete(ctx, c.ID), sentinel.ErrNotFound)
	})
}
