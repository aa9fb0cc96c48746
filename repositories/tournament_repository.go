package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/racing-tournament/models"
	"github.com/lib/pq"
)

var (
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentNameConflict = errors.New("tournament name already exists")
	ErrTournamentInvalidPhase = errors.New("invalid tournament phase")
)

type ListTournamentsFilter struct {
	Phases []models.TournamentPhase
	Limit  int
	Offset int
}

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	SaveSnapshot(ctx context.Context, exec SQLExecutor, id int, phase models.TournamentPhase, snapshot []byte) error
	UpdateArchiveKey(ctx context.Context, id int, archiveKey *string) error
	Delete(ctx context.Context, id int) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (name, phase, snapshot)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, t.Name, t.Phase, snapshotArg(t.Snapshot)).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	return handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `
		SELECT id, name, phase, snapshot, archive_key, created_at, updated_at
		FROM tournaments
		WHERE id = $1`

	t := &models.Tournament{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Phase, &t.Snapshot, &t.ArchiveKey, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

// List returns tournament records without their snapshots.
func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	query := `
		SELECT id, name, phase, archive_key, created_at, updated_at
		FROM tournaments
		WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if len(filter.Phases) > 0 {
		phases := make([]string, len(filter.Phases))
		for i, p := range filter.Phases {
			phases[i] = string(p)
		}
		query += fmt.Sprintf(" AND phase = ANY($%d)", argID)
		args = append(args, pq.Array(phases))
		argID++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if err := rows.Scan(&t.ID, &t.Name, &t.Phase, &t.ArchiveKey, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tournament: %w", err)
		}
		tournaments = append(tournaments, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return tournaments, nil
}

// SaveSnapshot stores the engine export and the phase it was taken in.
func (r *postgresTournamentRepository) SaveSnapshot(ctx context.Context, exec SQLExecutor, id int, phase models.TournamentPhase, snapshot []byte) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET phase = $1, snapshot = $2, updated_at = NOW() WHERE id = $3`
	result, err := executor.ExecContext(ctx, query, phase, snapshotArg(snapshot), id)
	if err != nil {
		return handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateArchiveKey(ctx context.Context, id int, archiveKey *string) error {
	query := `UPDATE tournaments SET archive_key = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, archiveKey, id)
	if err != nil {
		return fmt.Errorf("failed to update tournament archive key: %w", err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tournaments WHERE id = $1`, id)
	if err != nil {
		return handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

// snapshotArg sends an empty snapshot as SQL NULL.
func snapshotArg(snapshot []byte) interface{} {
	if len(snapshot) == 0 {
		return nil
	}
	return string(snapshot)
}

func handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "tournaments_name_key" {
				return ErrTournamentNameConflict
			}
		case "23514":
			if pqErr.Constraint == "tournaments_phase_check" {
				return ErrTournamentInvalidPhase
			}
		}
	}
	return err
}
