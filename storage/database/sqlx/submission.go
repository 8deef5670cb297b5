package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/sauvini/onboarding/core"
	"github.com/sauvini/onboarding/core/registration"
)

const (
	submissionTable   = "submission"
	submissionColumns = "id, session_id, role, email, first_name, last_name, status, submitted_at, verified_at"
)

// orderable maps the accepted ordering fields to their column.
var orderable = map[string]string{
	"id":           "id",
	"role":         "role",
	"email":        "email",
	"status":       "status",
	"submitted_at": "submitted_at",
	"verified_at":  "verified_at",
}

type submissionRepository struct {
	db *sqlx.DB
}

var _ registration.SubmissionRepository = (*submissionRepository)(nil) // interface compliance check

// NewSubmissionRepository wraps a postgres *sql.DB.
func NewSubmissionRepository(db *sql.DB) *submissionRepository {
	return &submissionRepository{db: sqlx.NewDb(db, "postgres")}
}

func (repo submissionRepository) CreateSubmission(ctx context.Context, sub registration.Submission) (registration.Submission, error) {
	sub.SubmittedAt = sub.SubmittedAt.UTC()
	if sub.Status == "" {
		sub.Status = registration.StatusSubmitted
	}

	// re-submitting a session (eg. after a ledger failure) keeps a single row
	q := `INSERT INTO ` + submissionTable + ` (session_id, role, email, first_name, last_name, status, submitted_at, verified_at)
		VALUES (:session_id, :role, :email, :first_name, :last_name, :status, :submitted_at, :verified_at)
		ON CONFLICT (session_id) DO UPDATE SET email = EXCLUDED.email, submitted_at = EXCLUDED.submitted_at
		RETURNING id`
	rows, err := repo.db.NamedQueryContext(ctx, q, sub)
	if err != nil {
		return registration.Submission{}, errors.Wrap(err, "inserting submission")
	}
	defer func() { _ = rows.Close() }()
	if rows.Next() {
		if err = rows.Scan(&sub.ID); err != nil {
			return registration.Submission{}, errors.Wrap(err, "scanning submission id")
		}
	}
	return sub, errors.Wrap(rows.Err(), "inserting submission")
}

func (repo submissionRepository) MarkVerified(ctx context.Context, sessionID string, at time.Time) error {
	q := repo.db.Rebind(`UPDATE ` + submissionTable + ` SET status = ?, verified_at = ? WHERE session_id = ?`)
	res, err := repo.db.ExecContext(ctx, q, registration.StatusVerified, null.TimeFrom(at.UTC()), sessionID)
	if err != nil {
		return errors.Wrap(err, "updating submission")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "updating submission")
	}
	if n == 0 {
		return registration.ErrSubmissionNotFound
	}
	return nil
}

func (repo submissionRepository) QuerySubmissions(ctx context.Context, filter registration.QueryFilter, ordering ...core.DBOrdering) ([]registration.Submission, error) {
	var (
		where []string
		args  []interface{}
	)
	filter.Clean()
	if filter.Role != "" {
		where = append(where, "role = ?")
		args = append(args, filter.Role)
	}
	if filter.Email != "" {
		where = append(where, "email = ?")
		args = append(args, filter.Email)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	q := "SELECT " + submissionColumns + " FROM " + submissionTable
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + orderBy(ordering)

	subs := make([]registration.Submission, 0)
	if err := repo.db.SelectContext(ctx, &subs, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	return subs, nil
}

// orderBy drops unknown fields. Defaults to the newest first.
func orderBy(ordering []core.DBOrdering) string {
	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if col, ok := orderable[ord.Field]; ok {
			ord.Field = pq.QuoteIdentifier(col)
			orderList = append(orderList, ord.String())
		}
	}
	if len(orderList) == 0 {
		return "submitted_at DESC, id DESC"
	}
	return strings.Join(orderList, ", ")
}
