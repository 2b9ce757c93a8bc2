package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"nostrgate.org/internal/access"
	"nostrgate.org/internal/ids"
)

// Store implements the access, invite and audit persistence interfaces on
// PostgreSQL through the pgx stdlib driver.
type Store struct {
	db *sql.DB
}

var _ access.Store = (*Store)(nil)

// Open connects with tuned pool defaults; adjust under load tests.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing pool (used by tests with sqlmock).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Keys(ctx context.Context) access.KeyStore        { return &keyStore{db: s.db} }
func (s *Store) Policies(ctx context.Context) access.PolicyStore { return &policyStore{db: s.db} }
func (s *Store) Groups(ctx context.Context) access.GroupStore    { return &groupStore{db: s.db} }

// Key store ---------------------------------------------------------------

type keyStore struct{ db *sql.DB }

const keyColumns = `id, npub, nip05, profile_name, status, policy_id, group_id, expires_at, created_at`

func (s *keyStore) Create(ctx context.Context, k *access.Key) error {
	if err := access.ValidateNpub(k.Npub); err != nil {
		return err
	}
	if k.ID == "" {
		k.ID = ids.New()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into keys(id, npub, nip05, profile_name, status, policy_id, group_id, expires_at, created_at)
		values ($1,$2,nullif($3,''),nullif($4,''),$5,nullif($6,''),nullif($7,''),$8,$9)
	`, k.ID, k.Npub, k.Nip05, k.ProfileName, k.Status, k.PolicyID, k.GroupID, k.ExpiresAt, k.CreatedAt)
	if isUniqueViolation(err) {
		return access.ErrAlreadyExists
	}
	return err
}

func (s *keyStore) Find(ctx context.Context, id string) (*access.Key, error) {
	row := s.db.QueryRowContext(ctx, `select `+keyColumns+` from keys where id=$1`, id)
	return scanKey(row)
}

func (s *keyStore) FindByNpub(ctx context.Context, npub string) (*access.Key, error) {
	row := s.db.QueryRowContext(ctx, `select `+keyColumns+` from keys where npub=$1`, npub)
	return scanKey(row)
}

func (s *keyStore) List(ctx context.Context) ([]*access.Key, error) {
	rows, err := s.db.QueryContext(ctx, `select `+keyColumns+` from keys order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*access.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, k)
	}
	return res, rows.Err()
}

func (s *keyStore) Update(ctx context.Context, k *access.Key) error {
	res, err := s.db.ExecContext(ctx, `
		update keys set nip05=nullif($2,''), profile_name=nullif($3,''), status=$4,
			policy_id=nullif($5,''), group_id=nullif($6,''), expires_at=$7
		where id=$1
	`, k.ID, k.Nip05, k.ProfileName, k.Status, k.PolicyID, k.GroupID, k.ExpiresAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *keyStore) Toggle(ctx context.Context, id string) (*access.Key, error) {
	row := s.db.QueryRowContext(ctx, `
		update keys set status = not status where id=$1
		returning `+keyColumns, id)
	return scanKey(row)
}

func (s *keyStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from keys where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*access.Key, error) {
	var (
		k         access.Key
		nip05     sql.NullString
		profile   sql.NullString
		policyID  sql.NullString
		groupID   sql.NullString
		expiresAt sql.NullTime
	)
	err := row.Scan(&k.ID, &k.Npub, &nip05, &profile, &k.Status, &policyID, &groupID, &expiresAt, &k.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	k.Nip05 = nip05.String
	k.ProfileName = profile.String
	k.PolicyID = policyID.String
	k.GroupID = groupID.String
	if expiresAt.Valid {
		t := expiresAt.Time
		k.ExpiresAt = &t
	}
	return &k, nil
}

// Policy store ------------------------------------------------------------

type policyStore struct{ db *sql.DB }

const policyColumns = `id, name, active_days, time_start, time_end, expiry_days, created_at`

func (s *policyStore) Create(ctx context.Context, p *access.Policy) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into policies(id, name, active_days, time_start, time_end, expiry_days, created_at)
		values ($1,$2,$3,$4,$5,nullif($6,0),$7)
	`, p.ID, p.Name, p.ActiveDays.String(), int(p.TimeStart), int(p.TimeEnd), p.ExpiryDays, p.CreatedAt)
	return err
}

func (s *policyStore) Find(ctx context.Context, id string) (*access.Policy, error) {
	row := s.db.QueryRowContext(ctx, `select `+policyColumns+` from policies where id=$1`, id)
	return scanPolicy(row)
}

func (s *policyStore) List(ctx context.Context) ([]*access.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `select `+policyColumns+` from policies order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*access.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *policyStore) Update(ctx context.Context, p *access.Policy) error {
	res, err := s.db.ExecContext(ctx, `
		update policies set name=$2, active_days=$3, time_start=$4, time_end=$5, expiry_days=nullif($6,0)
		where id=$1
	`, p.ID, p.Name, p.ActiveDays.String(), int(p.TimeStart), int(p.TimeEnd), p.ExpiryDays)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete relies on the schema's `on delete set null` foreign keys to
// cascade-null references from keys and groups.
func (s *policyStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from policies where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanPolicy(row rowScanner) (*access.Policy, error) {
	var (
		p          access.Policy
		days       string
		start, end int
		expiryDays sql.NullInt64
	)
	err := row.Scan(&p.ID, &p.Name, &days, &start, &end, &expiryDays, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	set, err := access.ParseDaySet(days)
	if err != nil {
		return nil, err
	}
	p.ActiveDays = set
	p.TimeStart = access.TimeOfDay(start)
	p.TimeEnd = access.TimeOfDay(end)
	if expiryDays.Valid {
		p.ExpiryDays = int(expiryDays.Int64)
	}
	return &p, nil
}

// Group store -------------------------------------------------------------

type groupStore struct{ db *sql.DB }

const groupColumns = `id, name, policy_id, created_at`

func (s *groupStore) Create(ctx context.Context, g *access.Group) error {
	if g.ID == "" {
		g.ID = ids.New()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into groups(id, name, policy_id, created_at)
		values ($1,$2,nullif($3,''),$4)
	`, g.ID, g.Name, g.PolicyID, g.CreatedAt)
	return err
}

func (s *groupStore) Find(ctx context.Context, id string) (*access.Group, error) {
	row := s.db.QueryRowContext(ctx, `select `+groupColumns+` from groups where id=$1`, id)
	return scanGroup(row)
}

func (s *groupStore) List(ctx context.Context) ([]*access.Group, error) {
	rows, err := s.db.QueryContext(ctx, `select `+groupColumns+` from groups order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*access.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func (s *groupStore) Update(ctx context.Context, g *access.Group) error {
	res, err := s.db.ExecContext(ctx, `
		update groups set name=$2, policy_id=nullif($3,'') where id=$1
	`, g.ID, g.Name, g.PolicyID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *groupStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from groups where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *groupStore) Members(ctx context.Context, groupID string) ([]*access.Key, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+keyColumns+` from keys where group_id=$1 order by created_at asc`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*access.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, k)
	}
	return res, rows.Err()
}

func scanGroup(row rowScanner) (*access.Group, error) {
	var (
		g        access.Group
		policyID sql.NullString
	)
	err := row.Scan(&g.ID, &g.Name, &policyID, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	g.PolicyID = policyID.String
	return &g, nil
}

// helpers ------------------------------------------------------------------

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return access.ErrNotFound
	}
	return nil
}

// isUniqueViolation matches Postgres error code 23505 without importing the
// pgconn error type into every call site.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	type coder interface{ SQLState() string }
	var c coder
	if errors.As(err, &c) {
		return c.SQLState() == "23505"
	}
	return false
}
