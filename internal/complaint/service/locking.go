package service

import (
	"context"
	"time"

	"civicdesk/internal/audit"
	"civicdesk/internal/complaint/access"
	"civicdesk/internal/complaint/models"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/requestcontext"
)

// Lock grants p an exclusive processing lease on the complaint.
func (s *Service) Lock(ctx context.Context, complaintID id.ComplaintID, p id.Principal) (c *models.Complaint, err error) {
	ctx, end := s.begin(ctx, "lock", complaintAttr(complaintID))
	defer func() { end(err) }()

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.authorizeLock(ctx, complaintID, p); err != nil {
			return err
		}
		var err error
		c, err = s.locks.Acquire(ctx, complaintID, p, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		return s.record(ctx, audit.ActionLockComplaint, complaintID, p.ID, leaseDetails(c))
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, "complaint locked", "complaint_id", complaintID.String(), "user_id", p.ID.String())
	return c, nil
}

// Unlock clears the lease. Admins may clear anyone's lease.
func (s *Service) Unlock(ctx context.Context, complaintID id.ComplaintID, p id.Principal) (c *models.Complaint, err error) {
	ctx, end := s.begin(ctx, "unlock", complaintAttr(complaintID))
	defer func() { end(err) }()

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.authorizeLock(ctx, complaintID, p)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		if err := access.CanRelease(p, current, now); err != nil {
			return err
		}
		c, err = s.locks.Release(ctx, complaintID, p, now)
		if err != nil {
			return err
		}
		return s.record(ctx, audit.ActionUnlockComplaint, complaintID, p.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, "complaint unlocked", "complaint_id", complaintID.String(), "user_id", p.ID.String())
	return c, nil
}

// RenewLock extends the caller's lease by the configured TTL.
func (s *Service) RenewLock(ctx context.Context, complaintID id.ComplaintID, p id.Principal) (c *models.Complaint, err error) {
	ctx, end := s.begin(ctx, "renew_lock", complaintAttr(complaintID))
	defer func() { end(err) }()

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.authorizeLock(ctx, complaintID, p); err != nil {
			return err
		}
		var err error
		c, err = s.locks.Renew(ctx, complaintID, p, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		return s.record(ctx, audit.ActionRenewLock, complaintID, p.ID, leaseDetails(c))
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) authorizeLock(ctx context.Context, complaintID id.ComplaintID, p id.Principal) (*models.Complaint, error) {
	c, err := s.findComplaint(ctx, complaintID, true)
	if err != nil {
		return nil, err
	}
	if err := access.CanLock(p, c); err != nil {
		return nil, err
	}
	return c, nil
}

func leaseDetails(c *models.Complaint) any {
	if c == nil || c.LockExpiresAt == nil {
		return nil
	}
	return map[string]string{"lockExpiresAt": c.LockExpiresAt.UTC().Format(time.RFC3339)}
}
