package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"civicdesk/internal/audit"
	"civicdesk/internal/complaint/access"
	"civicdesk/internal/complaint/models"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/sentinel"
	"civicdesk/pkg/requestcontext"
)

// Create files a new complaint for a citizen. The reference number is
// allocated inside the same transaction as the insert.
func (s *Service) Create(ctx context.Context, req models.CreateRequest, p id.Principal) (c *models.Complaint, err error) {
	ctx, end := s.begin(ctx, "create")
	defer func() { end(err) }()

	if err := access.CanCreate(p); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if req.DepartmentID != nil {
			if err := s.requireDepartment(ctx, *req.DepartmentID); err != nil {
				return err
			}
		}
		now := requestcontext.Now(ctx)
		ref, err := s.refs.Next(ctx, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate reference number")
		}

		c, err = models.NewComplaint(id.ComplaintID(uuid.New()), ref, p.ID, req, now)
		if err != nil {
			return err
		}
		if err := s.store.Create(ctx, c); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "reference number already allocated")
			}
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "department not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create complaint")
		}
		if err := s.store.AppendHistory(ctx, models.NewCreatedEntry(c, now)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write history")
		}

		var staff []id.UserID
		if c.DepartmentID != nil {
			staff, err = s.staff.StaffOf(ctx, *c.DepartmentID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load department staff")
			}
		}
		if err := s.notifier.ComplaintCreated(ctx, refOf(c), staff, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write notifications")
		}
		return s.record(ctx, audit.ActionCreateComplaint, c.ID, p.ID, map[string]string{"referenceNumber": ref})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
	s.logInfo(ctx, "complaint created",
		"complaint_id", c.ID.String(),
		"reference_number", c.ReferenceNumber,
	)
	return c, nil
}

// Update applies a staff edit. A live lease held by anyone else blocks the
// edit, admins included; admins take a lease over through Lock instead.
func (s *Service) Update(ctx context.Context, complaintID id.ComplaintID, patch models.UpdatePatch, p id.Principal) (c *models.Complaint, err error) {
	ctx, end := s.begin(ctx, "update", complaintAttr(complaintID))
	defer func() { end(err) }()

	if p.IsCitizen() {
		return nil, dErrors.New(dErrors.CodeForbidden, "citizens cannot change complaint status")
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var (
		oldStatus models.Status
		changed   bool
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.findComplaint(ctx, complaintID, true)
		if err != nil {
			return err
		}
		if err := access.CanMutateStatus(p, c); err != nil {
			return err
		}

		if patch.DepartmentID != nil && !sameDepartment(c.DepartmentID, patch.DepartmentID) {
			if err := s.requireDepartment(ctx, *patch.DepartmentID); err != nil {
				return err
			}
		}

		now := requestcontext.Now(ctx)
		if c.LockedByOther(p.ID, now) {
			if s.metrics != nil {
				s.metrics.IncrementLockConflict()
			}
			return dErrors.New(dErrors.CodeLockConflict, "complaint is locked by another user")
		}

		oldStatus, changed = c.ApplyPatch(patch, now)
		if err := s.store.Update(ctx, c); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "complaint not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update complaint")
		}

		if changed {
			entry := models.NewStatusChangeEntry(c.ID, oldStatus, c.Status, p.ID, now)
			if err := s.store.AppendHistory(ctx, entry); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write history")
			}
			if err := s.notifier.StatusChanged(ctx, refOf(c), string(c.Status), now); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write notifications")
			}
		}
		return s.record(ctx, audit.ActionUpdateComplaint, c.ID, p.ID, patch)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		if s.metrics != nil {
			s.metrics.IncrementStatusChange(string(c.Status))
		}
		s.logInfo(ctx, "complaint status changed",
			"complaint_id", c.ID.String(),
			"old_status", string(oldStatus),
			"new_status", string(c.Status),
		)
	}
	return c, nil
}

// AddComment attaches a comment or, for staff, an internal note.
func (s *Service) AddComment(ctx context.Context, complaintID id.ComplaintID, content string, isInternal bool, p id.Principal) (comment *models.Comment, err error) {
	ctx, end := s.begin(ctx, "add_comment", complaintAttr(complaintID))
	defer func() { end(err) }()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "content is required")
	}
	if isInternal {
		if err := access.CanPostInternal(p); err != nil {
			return nil, err
		}
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.findComplaint(ctx, complaintID, false)
		if err != nil {
			return err
		}
		if !access.CanComment(p, c) {
			return dErrors.New(dErrors.CodeForbidden, "access denied")
		}

		now := requestcontext.Now(ctx)
		comment = &models.Comment{
			ID:          id.CommentID(uuid.New()),
			ComplaintID: c.ID,
			AuthorID:    p.ID,
			Content:     content,
			IsInternal:  isInternal,
			CreatedAt:   now,
		}
		if err := s.store.AddComment(ctx, comment); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to add comment")
		}
		if err := s.store.AppendHistory(ctx, models.NewCommentEntry(comment)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write history")
		}
		if err := s.notifier.CommentAdded(ctx, refOf(c), p.ID, isInternal, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write notifications")
		}
		return s.record(ctx, audit.ActionAddComment, c.ID, p.ID, map[string]any{
			"commentId":  comment.ID.String(),
			"isInternal": isInternal,
		})
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// Delete hard-deletes a complaint. Comments and history go with it; its
// notifications stay with the complaint reference cleared.
func (s *Service) Delete(ctx context.Context, complaintID id.ComplaintID, p id.Principal) (err error) {
	ctx, end := s.begin(ctx, "delete", complaintAttr(complaintID))
	defer func() { end(err) }()

	if err := access.CanDelete(p); err != nil {
		return err
	}

	var ref string
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.findComplaint(ctx, complaintID, true)
		if err != nil {
			return err
		}
		ref = c.ReferenceNumber

		if err := s.notifier.ComplaintDeleted(ctx, c.ID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to detach notifications")
		}
		if err := s.store.Delete(ctx, c.ID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "complaint not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete complaint")
		}
		return s.record(ctx, audit.ActionDeleteComplaint, c.ID, p.ID, map[string]string{"referenceNumber": ref})
	})
	if err != nil {
		return err
	}

	s.logInfo(ctx, "complaint deleted",
		"complaint_id", complaintID.String(),
		"reference_number", ref,
	)
	return nil
}

func sameDepartment(current, next *id.DepartmentID) bool {
	return current != nil && next != nil && *current == *next
}
