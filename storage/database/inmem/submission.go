// Package inmemdb is the submission ledger used when no database is configured (DEV|TEST).
package inmemdb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/sauvini/onboarding/core"
	"github.com/sauvini/onboarding/core/registration"
)

type submissionRepository struct {
	mutex sync.RWMutex
	table map[string]*registration.Submission // by session ID
	pk    int64
}

var _ registration.SubmissionRepository = (*submissionRepository)(nil)

func NewSubmissionRepository() *submissionRepository {
	return &submissionRepository{table: make(map[string]*registration.Submission)}
}

func (repo *submissionRepository) CreateSubmission(_ context.Context, sub registration.Submission) (registration.Submission, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	sub.SubmittedAt = sub.SubmittedAt.UTC()
	if sub.Status == "" {
		sub.Status = registration.StatusSubmitted
	}
	if orig, ok := repo.table[sub.SessionID]; ok {
		orig.Email = sub.Email
		orig.SubmittedAt = sub.SubmittedAt
		return *orig, nil
	}

	repo.pk++
	sub.ID = repo.pk
	repo.table[sub.SessionID] = &sub
	return sub, nil
}

func (repo *submissionRepository) MarkVerified(_ context.Context, sessionID string, at time.Time) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	sub, ok := repo.table[sessionID]
	if !ok {
		return registration.ErrSubmissionNotFound
	}
	sub.Status = registration.StatusVerified
	sub.VerifiedAt = null.TimeFrom(at.UTC())
	return nil
}

func (repo *submissionRepository) QuerySubmissions(_ context.Context, filter registration.QueryFilter, ordering ...core.DBOrdering) ([]registration.Submission, error) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	filter.Clean()
	subs := make([]registration.Submission, 0, len(repo.table))
	for _, sub := range repo.table {
		if filter.Role != "" && sub.Role != filter.Role {
			continue
		}
		if filter.Email != "" && sub.Email != filter.Email {
			continue
		}
		if filter.Status != "" && sub.Status != filter.Status {
			continue
		}
		subs = append(subs, *sub)
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "submitted_at"}, {Field: "id"}} // newest first
	}
	sort.SliceStable(subs, func(i, j int) bool {
		for _, ord := range ordering {
			if c := compare(subs[i], subs[j], ord.Field); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return false
	})
	return subs, nil
}

// compare returns -1, 0 or +1. Unknown fields compare equal.
func compare(a, b registration.Submission, field string) int {
	switch field {
	case "id":
		return cmpInt(a.ID, b.ID)
	case "role":
		return cmpString(string(a.Role), string(b.Role))
	case "email":
		return cmpString(a.Email, b.Email)
	case "status":
		return cmpString(a.Status, b.Status)
	case "submitted_at":
		return cmpTime(a.SubmittedAt, b.SubmittedAt)
	case "verified_at":
		return cmpTime(a.VerifiedAt.Time, b.VerifiedAt.Time)
	}
	return 0
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
