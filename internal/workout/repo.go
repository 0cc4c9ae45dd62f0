package workout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valetudoapp/valetudo/pkg"
)

var (
	ErrRoutineNotFound = errors.New("routine not found")
	ErrRoutineExists   = errors.New("routine already exists")
)

// lastSetsQueryLimit bounds the history scan when resolving previous
// performance per exercise.
const lastSetsQueryLimit = 2000

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

func (r *Repo) ListRoutines(ctx context.Context, accountID int) ([]Routine, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, title, meta, description, exercises, created_at
			FROM workout_routine WHERE account_id = $1 ORDER BY created_at DESC, id DESC`,
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routines []Routine
	for rows.Next() {
		routine := Routine{AccountID: accountID}
		if err := rows.Scan(
			&routine.ID, &routine.Title, &routine.Meta,
			&routine.Description, &routine.Exercises, &routine.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan routine row: %w", err)
		}
		routines = append(routines, routine)
	}
	return routines, rows.Err()
}

// CreateRoutine relies on the unique index over
// (account_id, lower(title)) for duplicate detection.
func (r *Repo) CreateRoutine(ctx context.Context, routine Routine) (int, error) {
	rows, err := r.db.Query(
		ctx,
		`INSERT INTO workout_routine (account_id, title, meta, description, exercises, created_at)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		routine.AccountID, routine.Title, routine.Meta,
		routine.Description, routine.Exercises, routine.CreatedAt,
	)
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return -1, ErrRoutineExists
		}
		return -1, err
	}
	defer rows.Close()

	if !rows.Next() {
		if pkg.IsUniqueViolationError(rows.Err()) {
			return -1, ErrRoutineExists
		}
		return -1, errors.New("unexpected, no rows returned")
	}

	var id int
	if err := rows.Scan(&id); err != nil {
		return -1, fmt.Errorf("rows scan: %w", err)
	}
	return id, nil
}

func (r *Repo) DeleteRoutine(ctx context.Context, accountID, routineID int) error {
	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM workout_routine WHERE id = $1 AND account_id = $2`,
		routineID, accountID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoutineNotFound
	}
	return nil
}

// AddSession persists a completed session together with its flattened
// set entries in one transaction.
func (r *Repo) AddSession(ctx context.Context, session Session, entries []SetEntry) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return -1, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var sessionID int
	err = tx.QueryRow(
		ctx,
		`INSERT INTO workout_session (account_id, title, exercise_count, set_count, created_at)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		session.AccountID, session.Title, session.ExerciseCount, session.SetCount, session.CreatedAt,
	).Scan(&sessionID)
	if err != nil {
		return -1, fmt.Errorf("insert session: %w", err)
	}

	for _, entry := range entries {
		_, err = tx.Exec(
			ctx,
			`INSERT INTO workout_set_entry
				(account_id, session_id, exercise_name, set_index, weight, reps, failure, dropset, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			entry.AccountID, sessionID, entry.ExerciseName, entry.SetIndex,
			entry.Weight, entry.Reps, entry.Failure, entry.Dropset, entry.CreatedAt,
		)
		if err != nil {
			return -1, fmt.Errorf("insert set entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return -1, err
	}
	return sessionID, nil
}

func (r *Repo) ListSessions(ctx context.Context, accountID int) ([]Session, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, title, exercise_count, set_count, created_at
			FROM workout_session WHERE account_id = $1 ORDER BY created_at DESC, id DESC`,
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		session := Session{AccountID: accountID}
		if err := rows.Scan(
			&session.ID, &session.Title, &session.ExerciseCount,
			&session.SetCount, &session.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// LastExerciseSets resolves the most recent logged set per exercise
// name, matched case-insensitively. Rows with neither weight nor reps
// are skipped.
func (r *Repo) LastExerciseSets(ctx context.Context, accountID int, names []string) (map[string]LastSet, error) {
	lastSets := make(map[string]LastSet)
	if len(names) == 0 {
		return lastSets, nil
	}

	normalized := make([]string, 0, len(names))
	for _, name := range names {
		normalized = append(normalized, NormalizeExerciseName(name))
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT exercise_name, weight, reps FROM workout_set_entry
			WHERE account_id = $1 AND LOWER(exercise_name) = ANY($2)
			ORDER BY created_at DESC, set_index DESC LIMIT $3`,
		accountID, normalized, lastSetsQueryLimit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var weight *float64
		var reps *int
		if err := rows.Scan(&name, &weight, &reps); err != nil {
			return nil, fmt.Errorf("scan set entry row: %w", err)
		}
		if weight == nil && reps == nil {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(name))
		if _, ok := lastSets[key]; ok {
			continue
		}
		lastSets[key] = LastSet{Weight: weight, Reps: reps}
	}
	return lastSets, rows.Err()
}

// SessionsCount backs the health endpoint's stored-volume report.
func (r *Repo) SessionsCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM workout_session`).Scan(&count)
	return count, err
}
