package pg

import (
	"context"
	"database/sql"
	"time"

	"nostrgate.org/internal/audit"
	"nostrgate.org/internal/ids"
)

// Logs returns the append-only audit store backed by this store.
func (s *Store) Logs() audit.Store { return &logStore{db: s.db} }

type logStore struct{ db *sql.DB }

var _ audit.Store = (*logStore)(nil)

func (s *logStore) Append(ctx context.Context, e *audit.Entry) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into logs(id, key_id, timestamp, action, result, reason, ip_address)
		values ($1,nullif($2,''),$3,$4,$5,nullif($6,''),nullif($7,''))
	`, e.ID, e.KeyID, e.Timestamp, e.Action, string(e.Result), e.Reason, e.IP)
	return err
}

func (s *logStore) List(ctx context.Context, limit int, before time.Time) ([]*audit.Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if before.IsZero() {
		before = time.Now().UTC()
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, key_id, timestamp, action, result, reason, ip_address
		from logs
		where timestamp < $1
		order by timestamp desc
		limit $2
	`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*audit.Entry
	for rows.Next() {
		var (
			e      audit.Entry
			keyID  sql.NullString
			reason sql.NullString
			ip     sql.NullString
			result string
		)
		if err := rows.Scan(&e.ID, &keyID, &e.Timestamp, &e.Action, &result, &reason, &ip); err != nil {
			return nil, err
		}
		e.KeyID = keyID.String
		e.Result = audit.Result(result)
		e.Reason = reason.String
		e.IP = ip.String
		res = append(res, &e)
	}
	return res, rows.Err()
}

// Purge implements time-based retention; it is the only deletion path for
// log entries and lives outside the decision core.
func (s *logStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from logs where timestamp < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
