package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventhub/internal/db"
	"eventhub/internal/domain"
	"eventhub/internal/events"
)

// Repo is the SQL-backed event store gateway.
type Repo struct {
	DB      *sql.DB
	Dialect db.Dialect
	History events.Writer
}

var ErrNotFound = domain.ErrNotFound

// SystemActor is recorded on history rows written by automated reconciliation.
const SystemActor = "reconciler"

const bulkChunk = 500

const eventColumns = `id,title,start_time,end_time,venue_name,venue_address,city,description,category,tags_json,image_url,source_name,source_url,original_event_url,status,content_hash,imported_at,imported_by,import_notes,last_scraped_at,created_at,updated_at`

func New(conn *sql.DB, dialect db.Dialect) Repo {
	return Repo{DB: conn, Dialect: dialect, History: events.Writer{Dialect: dialect}}
}

func (r Repo) q(query string) string {
	return r.Dialect.Rebind(query)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (domain.Event, error) {
	var e domain.Event
	var startTime, endTime, venueName, venueAddress, description, category, tags, imageURL, importedAt, importedBy, importNotes sql.NullString
	var status, lastScraped, createdAt, updatedAt string
	err := row.Scan(&e.ID, &e.Title, &startTime, &endTime, &venueName, &venueAddress, &e.City, &description, &category, &tags, &imageURL,
		&e.SourceName, &e.SourceURL, &e.OriginalEventURL, &status, &e.ContentHash, &importedAt, &importedBy, &importNotes,
		&lastScraped, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.Status = domain.EventStatus(status)
	e.VenueName = venueName.String
	e.VenueAddress = venueAddress.String
	e.Description = description.String
	e.Category = category.String
	e.ImageURL = imageURL.String
	e.ImportedBy = importedBy.String
	e.ImportNotes = importNotes.String
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &e.Tags); err != nil {
			return e, fmt.Errorf("decode tags for %s: %w", e.ID, err)
		}
	}
	if e.StartTime, err = parseNullTS(startTime); err != nil {
		return e, err
	}
	if e.EndTime, err = parseNullTS(endTime); err != nil {
		return e, err
	}
	if e.ImportedAt, err = parseNullTS(importedAt); err != nil {
		return e, err
	}
	if e.LastScrapedAt, err = parseTS(lastScraped); err != nil {
		return e, err
	}
	if e.CreatedAt, err = parseTS(createdAt); err != nil {
		return e, err
	}
	if e.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return e, err
	}
	return e, nil
}

// FindByOriginalURL is an exact-match point lookup on the identity key.
func (r Repo) FindByOriginalURL(ctx context.Context, url string) (domain.Event, error) {
	return scanEvent(r.DB.QueryRowContext(ctx, r.q(`SELECT `+eventColumns+` FROM events WHERE original_event_url=?`), url))
}

func (r Repo) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	return scanEvent(r.DB.QueryRowContext(ctx, r.q(`SELECT `+eventColumns+` FROM events WHERE id=?`), id))
}

func (r Repo) getEventTx(ctx context.Context, tx *sql.Tx, id string) (domain.Event, error) {
	return scanEvent(tx.QueryRowContext(ctx, r.q(`SELECT `+eventColumns+` FROM events WHERE id=?`), id))
}

func (r Repo) InsertEvent(ctx context.Context, ev domain.Event) (domain.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	tags, err := marshalTags(ev.Tags)
	if err != nil {
		return domain.Event{}, err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Event{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, r.q(`INSERT INTO events(`+eventColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		ev.ID, ev.Title, nullableTime(ev.StartTime), nullableTime(ev.EndTime), nullable(ev.VenueName), nullable(ev.VenueAddress), ev.City,
		nullable(ev.Description), nullable(ev.Category), tags, nullable(ev.ImageURL), ev.SourceName, ev.SourceURL, ev.OriginalEventURL,
		string(ev.Status), ev.ContentHash, nullableTime(ev.ImportedAt), nullable(ev.ImportedBy), nullable(ev.ImportNotes),
		formatTS(ev.LastScrapedAt), formatTS(ev.CreatedAt), formatTS(ev.UpdatedAt))
	if err != nil {
		return domain.Event{}, fmt.Errorf("insert event: %w", err)
	}
	if err := r.History.Append(ctx, tx, events.TypeCreated, ev.ID, SystemActor, events.EventPayload{
		"status": ev.Status,
		"source": ev.SourceName,
		"hash":   ev.ContentHash,
	}); err != nil {
		return domain.Event{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Event{}, err
	}
	return ev, nil
}

// UpdateEvent fully replaces the normalized fields of a stored event. Import
// metadata and created_at are left alone.
func (r Repo) UpdateEvent(ctx context.Context, id string, u domain.EventUpdate) (domain.Event, error) {
	tags, err := marshalTags(u.Fields.Tags)
	if err != nil {
		return domain.Event{}, err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Event{}, err
	}
	defer tx.Rollback()

	var prevStatus, prevHash string
	err = tx.QueryRowContext(ctx, r.q(`SELECT status, content_hash FROM events WHERE id=?`), id).Scan(&prevStatus, &prevHash)
	if err == sql.ErrNoRows {
		return domain.Event{}, ErrNotFound
	}
	if err != nil {
		return domain.Event{}, err
	}
	f := u.Fields
	_, err = tx.ExecContext(ctx, r.q(`UPDATE events SET title=?, start_time=?, end_time=?, venue_name=?, venue_address=?, city=?, description=?, category=?, tags_json=?, image_url=?, source_name=?, source_url=?, original_event_url=?, status=?, content_hash=?, last_scraped_at=?, updated_at=? WHERE id=?`),
		f.Title, nullableTime(f.StartTime), nullableTime(f.EndTime), nullable(f.VenueName), nullable(f.VenueAddress), f.City,
		nullable(f.Description), nullable(f.Category), tags, nullable(f.ImageURL), f.SourceName, f.SourceURL, f.OriginalEventURL,
		string(u.Status), u.ContentHash, formatTS(u.LastScrapedAt), formatTS(u.UpdatedAt), id)
	if err != nil {
		return domain.Event{}, fmt.Errorf("update event: %w", err)
	}
	if prevHash != u.ContentHash || prevStatus != string(u.Status) {
		if err := r.History.Append(ctx, tx, events.TypeChanged, id, SystemActor, events.EventPayload{
			"from_status":  prevStatus,
			"to_status":    u.Status,
			"hash_changed": prevHash != u.ContentHash,
		}); err != nil {
			return domain.Event{}, err
		}
	}
	updated, err := r.getEventTx(ctx, tx, id)
	if err != nil {
		return domain.Event{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Event{}, err
	}
	return updated, nil
}

// ListActiveBySourceURL returns every event of a source that is not already inactive.
func (r Repo) ListActiveBySourceURL(ctx context.Context, sourceURL string) ([]domain.ActiveRef, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT id, original_event_url, status FROM events WHERE source_url=? AND status != ? ORDER BY created_at ASC, id ASC`),
		sourceURL, string(domain.StatusInactive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActiveRef
	for rows.Next() {
		var ref domain.ActiveRef
		var status string
		if err := rows.Scan(&ref.ID, &ref.OriginalEventURL, &status); err != nil {
			return nil, err
		}
		ref.Status = domain.EventStatus(status)
		res = append(res, ref)
	}
	return res, rows.Err()
}

// BulkSetInactive retires the given events. Rows already inactive are left untouched.
func (r Repo) BulkSetInactive(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ts := formatTS(at)
	for start := 0; start < len(ids); start += bulkChunk {
		end := start + bulkChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		args := []any{string(domain.StatusInactive), ts}
		for _, id := range chunk {
			args = append(args, id)
		}
		args = append(args, string(domain.StatusInactive))
		query := fmt.Sprintf(`UPDATE events SET status=?, updated_at=? WHERE id IN (%s) AND status != ?`, placeholders(len(chunk)))
		if _, err := tx.ExecContext(ctx, r.q(query), args...); err != nil {
			return fmt.Errorf("retire events: %w", err)
		}
		for _, id := range chunk {
			if err := r.History.Append(ctx, tx, events.TypeRetired, id, SystemActor, nil); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// MarkImported is the external import action. It succeeds exactly once per event.
func (r Repo) MarkImported(ctx context.Context, id, actorID, notes string, at time.Time) (domain.Event, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.Event{}, fmt.Errorf("imported_by is required")
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Event{}, err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, r.q(`SELECT status FROM events WHERE id=?`), id).Scan(&status)
	if err == sql.ErrNoRows {
		return domain.Event{}, ErrNotFound
	}
	if err != nil {
		return domain.Event{}, err
	}
	if domain.EventStatus(status) == domain.StatusImported {
		return domain.Event{}, domain.ErrAlreadyImported
	}
	ts := formatTS(at)
	if _, err := tx.ExecContext(ctx, r.q(`UPDATE events SET status=?, imported_at=?, imported_by=?, import_notes=?, updated_at=? WHERE id=?`),
		string(domain.StatusImported), ts, actorID, nullable(notes), ts, id); err != nil {
		return domain.Event{}, fmt.Errorf("import event: %w", err)
	}
	if err := r.History.Append(ctx, tx, events.TypeImported, id, actorID, events.EventPayload{"from_status": status}); err != nil {
		return domain.Event{}, err
	}
	ev, err := r.getEventTx(ctx, tx, id)
	if err != nil {
		return domain.Event{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Event{}, err
	}
	return ev, nil
}

type EventFilters struct {
	City            string
	Search          string
	Status          string
	Category        string
	DateFrom        *time.Time
	DateTo          *time.Time
	IncludeInactive bool
	Limit           int
	Offset          int
}

// ListEvents returns a page of the catalog ordered by start time (undated last)
// together with the total number of matches. Inactive events are hidden unless
// requested or a status filter is given.
func (r Repo) ListEvents(ctx context.Context, f EventFilters) ([]domain.Event, int, error) {
	var clauses []string
	var args []any
	if f.City != "" {
		clauses = append(clauses, "city=?")
		args = append(args, f.City)
	}
	if !f.IncludeInactive && f.Status == "" {
		clauses = append(clauses, "status != ?")
		args = append(args, string(domain.StatusInactive))
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		like := "%" + s + "%"
		clauses = append(clauses, "(LOWER(title) LIKE ? OR LOWER(COALESCE(description,'')) LIKE ? OR LOWER(COALESCE(venue_name,'')) LIKE ?)")
		args = append(args, like, like, like)
	}
	if c := strings.ToLower(strings.TrimSpace(f.Category)); c != "" {
		clauses = append(clauses, "LOWER(COALESCE(category,'')) LIKE ?")
		args = append(args, "%"+c+"%")
	}
	if f.DateFrom != nil {
		clauses = append(clauses, "start_time >= ?")
		args = append(args, formatTS(*f.DateFrom))
	}
	if f.DateTo != nil {
		clauses = append(clauses, "start_time <= ?")
		args = append(args, formatTS(*f.DateTo))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, r.q(`SELECT count(*) FROM events `+where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + eventColumns + ` FROM events ` + where + ` ORDER BY CASE WHEN start_time IS NULL THEN 1 ELSE 0 END, start_time ASC, id ASC`
	pageArgs := append([]any{}, args...)
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		pageArgs = append(pageArgs, f.Limit, f.Offset)
	}
	rows, err := r.DB.QueryContext(ctx, r.q(query), pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, ev)
	}
	return res, total, rows.Err()
}

func (r Repo) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM events`).Scan(&n)
	return n, err
}

func (r Repo) ListHistory(ctx context.Context, eventID string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT id,event_id,ts,type,actor_id,payload_json FROM event_history WHERE event_id=? ORDER BY ts DESC, id DESC LIMIT ?`), eventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		var ts string
		var payload sql.NullString
		if err := rows.Scan(&h.ID, &h.EventID, &ts, &h.Type, &h.ActorID, &payload); err != nil {
			return nil, err
		}
		if h.TS, err = parseTS(ts); err != nil {
			return nil, err
		}
		h.Payload = payload.String
		res = append(res, h)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTS(*t)
}

func formatTS(t time.Time) string {
	return t.UTC().Format(events.TSLayout)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTS(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTS(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func marshalTags(tags []string) (any, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
