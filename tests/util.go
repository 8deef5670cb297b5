package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sauvini/onboarding/core/registration"
)

func CreateSubmission(
	t *testing.T,
	repo registration.SubmissionRepository,
	role registration.Role,
	first, last, email string,
	submittedAt ...time.Time,
) registration.Submission {
	tstamp := time.Now().UTC()
	if len(submittedAt) > 0 {
		tstamp = submittedAt[0].UTC()
	}
	sub := registration.Submission{
		SessionID:   uuid.New().String(),
		Role:        role,
		Email:       email,
		FirstName:   first,
		LastName:    last,
		Status:      registration.StatusSubmitted,
		SubmittedAt: tstamp,
	}
	sub, err := repo.CreateSubmission(context.Background(), sub)
	if err != nil {
		t.Fatalf("CreateSubmission() failed: %v", err)
	}
	return sub
}

// CreateSession stores a wizard session at step of role, holding draft.
func CreateSession(t *testing.T, repo registration.Repository, role registration.Role, step int, draft registration.Draft) registration.Session {
	now := time.Now().UTC()
	sess := registration.Session{
		ID:        uuid.New().String(),
		Role:      role,
		Step:      step,
		Draft:     draft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return sess
}
