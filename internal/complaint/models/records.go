package models

import (
	"time"

	"github.com/google/uuid"

	id "civicdesk/pkg/domain"
)

// HistoryAction names an entry in a complaint's history.
type HistoryAction string

const (
	HistoryCreate       HistoryAction = "CREATE"
	HistoryStatusChange HistoryAction = "STATUS_CHANGE"
	HistoryAddComment   HistoryAction = "ADD_COMMENT"
)

// HistoryEntry is an append-only record of a lifecycle step.
type HistoryEntry struct {
	ID          uuid.UUID      `json:"id"`
	ComplaintID id.ComplaintID `json:"complaint_id"`
	Action      HistoryAction  `json:"action"`
	OldValue    *string        `json:"old_value,omitempty"`
	NewValue    *string        `json:"new_value,omitempty"`
	Description string         `json:"description"`
	PerformedBy id.UserID      `json:"performed_by"`
	CreatedAt   time.Time      `json:"created_at"`
}

func NewCreatedEntry(c *Complaint, now time.Time) *HistoryEntry {
	newValue := string(StatusNew)
	return &HistoryEntry{
		ID:          uuid.New(),
		ComplaintID: c.ID,
		Action:      HistoryCreate,
		NewValue:    &newValue,
		Description: "Complaint created",
		PerformedBy: c.CitizenID,
		CreatedAt:   now,
	}
}

func NewStatusChangeEntry(complaintID id.ComplaintID, from, to Status, actor id.UserID, now time.Time) *HistoryEntry {
	oldValue, newValue := string(from), string(to)
	return &HistoryEntry{
		ID:          uuid.New(),
		ComplaintID: complaintID,
		Action:      HistoryStatusChange,
		OldValue:    &oldValue,
		NewValue:    &newValue,
		Description: "Status changed from " + oldValue + " to " + newValue,
		PerformedBy: actor,
		CreatedAt:   now,
	}
}

func NewCommentEntry(comment *Comment) *HistoryEntry {
	description := "Comment added"
	if comment.IsInternal {
		description = "Internal note added"
	}
	return &HistoryEntry{
		ID:          uuid.New(),
		ComplaintID: comment.ComplaintID,
		Action:      HistoryAddComment,
		Description: description,
		PerformedBy: comment.AuthorID,
		CreatedAt:   comment.CreatedAt,
	}
}

// Comment is a note on a complaint. Internal comments are hidden from citizens.
type Comment struct {
	ID          id.CommentID   `json:"id"`
	ComplaintID id.ComplaintID `json:"complaint_id"`
	AuthorID    id.UserID      `json:"author_id"`
	Content     string         `json:"content"`
	IsInternal  bool           `json:"is_internal"`
	CreatedAt   time.Time      `json:"created_at"`
}

// HistoryLimit caps the history entries returned with a complaint detail.
const HistoryLimit = 20

// Detail is a complaint with its visible comments and recent history.
type Detail struct {
	*Complaint
	Comments []*Comment      `json:"comments"`
	History  []*HistoryEntry `json:"history"`
}

// PageMeta describes a page of results.
type PageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"total_pages"`
}

func NewPageMeta(total, page, limit int) PageMeta {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return PageMeta{Total: total, Page: page, Limit: limit, TotalPages: pages}
}

// ListResult is one page of complaints.
type ListResult struct {
	Data []*Complaint `json:"data"`
	Meta PageMeta     `json:"meta"`
}

// StatusCounts groups complaint counts by status.
type StatusCounts struct {
	New        int `json:"new"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Rejected   int `json:"rejected"`
}

// Statistics summarizes the complaints visible to a principal.
type Statistics struct {
	Total    int          `json:"total"`
	ByStatus StatusCounts `json:"by_status"`
}

// NewStatistics folds per-status counts into a summary. Unknown statuses are ignored.
func NewStatistics(counts map[Status]int) Statistics {
	s := Statistics{ByStatus: StatusCounts{
		New:        counts[StatusNew],
		InProgress: counts[StatusInProgress],
		Completed:  counts[StatusCompleted],
		Rejected:   counts[StatusRejected],
	}}
	s.Total = s.ByStatus.New + s.ByStatus.InProgress + s.ByStatus.Completed + s.ByStatus.Rejected
	return s
}
