package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"civicdesk/internal/complaint/access"
	"civicdesk/internal/complaint/models"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
)

// List returns one page of the complaints p may see, newest first.
func (s *Service) List(ctx context.Context, f models.Filter, p id.Principal) (result *models.ListResult, err error) {
	ctx, end := s.begin(ctx, "list", attribute.String("principal.role", string(p.Role)))
	defer func() { end(err) }()

	if err := f.Validate(); err != nil {
		return nil, err
	}
	f = f.Normalize()
	scope := access.Scope(p)

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		data, total, err := s.store.List(ctx, scope, f)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list complaints")
		}
		if data == nil {
			data = []*models.Complaint{}
		}
		result = &models.ListResult{Data: data, Meta: models.NewPageMeta(total, f.Page, f.Limit)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns a complaint with its comments and recent history. Citizens never
// see internal notes.
//
// Comments and history load in parallel, outside any transaction.
func (s *Service) Get(ctx context.Context, complaintID id.ComplaintID, p id.Principal) (detail *models.Detail, err error) {
	ctx, end := s.begin(ctx, "get", complaintAttr(complaintID))
	defer func() { end(err) }()

	c, err := s.findComplaint(ctx, complaintID, false)
	if err != nil {
		return nil, err
	}
	if !access.CanView(p, c) {
		return nil, dErrors.New(dErrors.CodeForbidden, "access denied")
	}

	var (
		comments []*models.Comment
		history  []*models.HistoryEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		comments, err = s.store.ListComments(gctx, complaintID, !p.IsCitizen())
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load comments")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		history, err = s.store.ListHistory(gctx, complaintID, models.HistoryLimit)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load history")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if comments == nil {
		comments = []*models.Comment{}
	}
	if history == nil {
		history = []*models.HistoryEntry{}
	}
	return &models.Detail{Complaint: c, Comments: comments, History: history}, nil
}

// Statistics counts the complaints in p's scope by status. An employee without
// a department sees zeros.
func (s *Service) Statistics(ctx context.Context, p id.Principal) (stats *models.Statistics, err error) {
	ctx, end := s.begin(ctx, "statistics", attribute.String("principal.role", string(p.Role)))
	defer func() { end(err) }()

	if err := access.CanViewStatistics(p); err != nil {
		return nil, err
	}
	scope := access.Scope(p)
	if scope.None {
		empty := models.NewStatistics(nil)
		return &empty, nil
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		counts, err := s.store.CountByStatus(ctx, scope)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count complaints")
		}
		result := models.NewStatistics(counts)
		stats = &result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
