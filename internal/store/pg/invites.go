package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"nostrgate.org/internal/access"
	"nostrgate.org/internal/ids"
	"nostrgate.org/internal/invite"
)

// Invites returns the invite ledger backed by this store.
func (s *Store) Invites() invite.Ledger { return &inviteLedger{db: s.db} }

type inviteLedger struct{ db *sql.DB }

var _ invite.Ledger = (*inviteLedger)(nil)

const inviteColumns = `id, token, expires_at, max_uses, uses, enabled, comment, created_at`

func (s *inviteLedger) Create(ctx context.Context, params invite.CreateParams) (*invite.Invite, error) {
	inv := &invite.Invite{
		ID:        ids.New(),
		ExpiresAt: params.ExpiresAt,
		MaxUses:   params.MaxUses,
		Enabled:   true,
		Comment:   params.Comment,
		CreatedAt: time.Now().UTC(),
	}
	// Retry on the astronomically unlikely token collision.
	for {
		token, err := invite.NewToken()
		if err != nil {
			return nil, err
		}
		inv.Token = token
		_, err = s.db.ExecContext(ctx, `
			insert into invites(id, token, expires_at, max_uses, uses, enabled, comment, created_at)
			values ($1,$2,$3,$4,0,true,nullif($5,''),$6)
		`, inv.ID, inv.Token, inv.ExpiresAt, inv.MaxUses, inv.Comment, inv.CreatedAt)
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return inv, nil
	}
}

func (s *inviteLedger) Find(ctx context.Context, id string) (*invite.Invite, error) {
	row := s.db.QueryRowContext(ctx, `select `+inviteColumns+` from invites where id=$1`, id)
	return scanInvite(row)
}

func (s *inviteLedger) List(ctx context.Context) ([]*invite.Invite, error) {
	rows, err := s.db.QueryContext(ctx, `select `+inviteColumns+` from invites order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*invite.Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, inv)
	}
	return res, rows.Err()
}

// Redeem performs the check-and-increment and the key insert in a single
// serializable transaction with the invite row locked `for update`, so
// concurrent redemptions of the same token serialize and Uses can never
// exceed MaxUses. Client-facing denials (NotFound, Disabled, Expired,
// Exhausted) roll the transaction back without consuming a use; any other
// error is a storage failure and is surfaced as such.
func (s *inviteLedger) Redeem(ctx context.Context, token string, key invite.NewKey) (*invite.Redemption, error) {
	if err := access.ValidateNpub(key.Npub); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		select `+inviteColumns+` from invites where token=$1 for update
	`, token)
	inv, err := scanInvite(row)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	switch {
	case !inv.Enabled:
		return nil, invite.ErrDisabled
	case inv.Expired(now):
		return nil, invite.ErrExpired
	case inv.Exhausted():
		return nil, invite.ErrExhausted
	}

	provisioned := &access.Key{
		ID:          ids.New(),
		Npub:        key.Npub,
		Nip05:       key.Nip05,
		ProfileName: key.ProfileName,
		Status:      true,
		CreatedAt:   now,
	}
	if _, err := tx.ExecContext(ctx, `
		insert into keys(id, npub, nip05, profile_name, status, created_at)
		values ($1,$2,nullif($3,''),nullif($4,''),true,$5)
	`, provisioned.ID, provisioned.Npub, provisioned.Nip05, provisioned.ProfileName, provisioned.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, access.ErrAlreadyExists
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		update invites set uses = uses + 1 where id=$1
	`, inv.ID); err != nil {
		return nil, err
	}
	inv.Uses++

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &invite.Redemption{Invite: inv, Key: provisioned}, nil
}

func (s *inviteLedger) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `update invites set enabled=$2 where id=$1`, id, enabled)
	if err != nil {
		return err
	}
	return requireInvite(res)
}

func (s *inviteLedger) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from invites where id=$1`, id)
	if err != nil {
		return err
	}
	return requireInvite(res)
}

func requireInvite(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return invite.ErrNotFound
	}
	return nil
}

func scanInvite(row rowScanner) (*invite.Invite, error) {
	var (
		inv     invite.Invite
		comment sql.NullString
	)
	err := row.Scan(&inv.ID, &inv.Token, &inv.ExpiresAt, &inv.MaxUses, &inv.Uses, &inv.Enabled, &comment, &inv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invite.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	inv.Comment = comment.String
	return &inv, nil
}
