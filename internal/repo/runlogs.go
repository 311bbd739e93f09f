package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventhub/internal/domain"
)

const runLogColumns = `id,source_name,started_at,finished_at,events_found,events_new,events_updated,events_inactive,status,error_message`

// CreateRunLog opens a running log row for a source and returns its id.
func (r Repo) CreateRunLog(ctx context.Context, sourceName string, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := r.DB.ExecContext(ctx, r.q(`INSERT INTO scrape_logs(id,source_name,started_at,status) VALUES (?,?,?,?)`),
		id, sourceName, formatTS(startedAt), string(domain.RunRunning))
	if err != nil {
		return "", fmt.Errorf("create run log: %w", err)
	}
	return id, nil
}

// FinalizeRunLog moves a running log to success or error. A log is finalized
// at most once.
func (r Repo) FinalizeRunLog(ctx context.Context, id string, fin domain.RunFinalization) error {
	if fin.Status != domain.RunSuccess && fin.Status != domain.RunError {
		return fmt.Errorf("invalid terminal status %q", fin.Status)
	}
	res, err := r.DB.ExecContext(ctx, r.q(`UPDATE scrape_logs SET finished_at=?, events_found=?, events_new=?, events_updated=?, events_inactive=?, status=?, error_message=? WHERE id=? AND status=?`),
		formatTS(fin.FinishedAt), fin.Counts.Found, fin.Counts.New, fin.Counts.Updated, fin.Counts.Inactive,
		string(fin.Status), nullable(fin.ErrorMessage), id, string(domain.RunRunning))
	if err != nil {
		return fmt.Errorf("finalize run log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetRunLog(ctx, id); err != nil {
			return err
		}
		return domain.ErrRunFinalized
	}
	return nil
}

func (r Repo) GetRunLog(ctx context.Context, id string) (domain.RunLog, error) {
	return scanRunLog(r.DB.QueryRowContext(ctx, r.q(`SELECT `+runLogColumns+` FROM scrape_logs WHERE id=?`), id))
}

// ListRunLogs returns the most recent logs first, optionally for one source.
func (r Repo) ListRunLogs(ctx context.Context, sourceName string, limit int) ([]domain.RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runLogColumns + ` FROM scrape_logs`
	var args []any
	if sourceName != "" {
		query += ` WHERE source_name=?`
		args = append(args, sourceName)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []domain.RunLog
	for rows.Next() {
		l, err := scanRunLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func scanRunLog(row rowScanner) (domain.RunLog, error) {
	var l domain.RunLog
	var startedAt, status string
	var finishedAt, errMsg sql.NullString
	err := row.Scan(&l.ID, &l.SourceName, &startedAt, &finishedAt, &l.Counts.Found, &l.Counts.New, &l.Counts.Updated, &l.Counts.Inactive, &status, &errMsg)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	l.Status = domain.RunStatus(status)
	l.ErrorMessage = errMsg.String
	if l.StartedAt, err = parseTS(startedAt); err != nil {
		return l, err
	}
	if l.FinishedAt, err = parseNullTS(finishedAt); err != nil {
		return l, err
	}
	return l, nil
}
