package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sauvini/onboarding/core"
	"github.com/sauvini/onboarding/core/registration"
)

func seed(t *testing.T, repo *submissionRepository) time.Time {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	subs := []registration.Submission{
		{SessionID: "s1", Role: registration.RoleStudent, Email: "amine@example.com", SubmittedAt: start},
		{SessionID: "s2", Role: registration.RoleTeacher, Email: "samira@example.com", SubmittedAt: start.Add(time.Hour)},
		{SessionID: "s3", Role: registration.RoleStudent, Email: "lina@example.com", SubmittedAt: start.Add(2 * time.Hour)},
	}
	for _, sub := range subs {
		_, err := repo.CreateSubmission(ctx, sub)
		require.NoError(t, err)
	}
	return start
}

func sessionIDs(subs []registration.Submission) []string {
	ids := make([]string, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.SessionID)
	}
	return ids
}

func TestSubmissionRepository_CreateSubmission(t *testing.T) {
	ctx := context.Background()
	repo := NewSubmissionRepository()
	seed(t, repo)

	// same session: same row
	sub, err := repo.CreateSubmission(ctx, registration.Submission{SessionID: "s1", Role: registration.RoleStudent, Email: "new@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sub.ID)
	assert.Equal(t, "new@example.com", sub.Email)
	assert.Equal(t, registration.StatusSubmitted, sub.Status)

	subs, err := repo.QuerySubmissions(ctx, registration.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, subs, 3)
}

func TestSubmissionRepository_MarkVerified(t *testing.T) {
	ctx := context.Background()
	repo := NewSubmissionRepository()
	start := seed(t, repo)

	require.NoError(t, repo.MarkVerified(ctx, "s1", start.Add(time.Minute)))
	assert.Equal(t, registration.ErrSubmissionNotFound, repo.MarkVerified(ctx, "nope", start))

	subs, err := repo.QuerySubmissions(ctx, registration.QueryFilter{Status: registration.StatusVerified})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "s1", subs[0].SessionID)
	assert.True(t, subs[0].VerifiedAt.Valid)
	assert.Equal(t, start.Add(time.Minute), subs[0].VerifiedAt.Time)
}

func TestSubmissionRepository_QuerySubmissions(t *testing.T) {
	ctx := context.Background()
	repo := NewSubmissionRepository()
	seed(t, repo)

	tests := []struct {
		name     string
		filter   registration.QueryFilter
		ordering []core.DBOrdering
		want     []string
	}{
		{name: "all newest first", want: []string{"s3", "s2", "s1"}},
		{name: "by role", filter: registration.QueryFilter{Role: registration.RoleStudent}, want: []string{"s3", "s1"}},
		{name: "by email", filter: registration.QueryFilter{Email: " Samira@Example.com "}, want: []string{"s2"}},
		{name: "ordered by email", ordering: core.ParseOrderings("email"), want: []string{"s1", "s3", "s2"}},
		{name: "ordered by role then oldest", ordering: core.ParseOrderings("-role,submitted_at"), want: []string{"s2", "s1", "s3"}},
		{name: "no match", filter: registration.QueryFilter{Status: registration.StatusVerified}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs, err := repo.QuerySubmissions(ctx, tt.filter, tt.ordering...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sessionIDs(subs))
		})
	}
}
