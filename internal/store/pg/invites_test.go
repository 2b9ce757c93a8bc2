package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"nostrgate.org/internal/access"
	"nostrgate.org/internal/invite"
)

const testNpub = "npub1aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

var inviteCols = []string{"id", "token", "expires_at", "max_uses", "uses", "enabled", "comment", "created_at"}

func inviteRow(mock sqlmock.Sqlmock, token string, maxUses, uses int, enabled bool, expiresAt time.Time) *sqlmock.Rows {
	return mock.NewRows(inviteCols).
		AddRow("inv1", token, expiresAt, maxUses, uses, enabled, nil, time.Now().UTC())
}

func TestRedeemHappyPath(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	future := time.Now().Add(time.Hour).UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`select .+ from invites where token=\$1 for update`).
		WithArgs("tok").
		WillReturnRows(inviteRow(mock, "tok", 1, 0, true, future))
	mock.ExpectExec(`insert into keys`).
		WithArgs(sqlmock.AnyArg(), testNpub, "", "alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`update invites set uses = uses \+ 1 where id=\$1`).
		WithArgs("inv1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ledger := NewStore(db).Invites()
	red, err := ledger.Redeem(context.Background(), "tok", invite.NewKey{Npub: testNpub, ProfileName: "alice"})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if red.Invite.Uses != 1 {
		t.Fatalf("uses = %d, want 1", red.Invite.Uses)
	}
	if red.Key.Npub != testNpub || !red.Key.Status {
		t.Fatalf("key = %+v", red.Key)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRedeemExhaustedRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	future := time.Now().Add(time.Hour).UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`select .+ from invites where token=\$1 for update`).
		WithArgs("tok").
		WillReturnRows(inviteRow(mock, "tok", 1, 1, true, future))
	mock.ExpectRollback()

	ledger := NewStore(db).Invites()
	_, err = ledger.Redeem(context.Background(), "tok", invite.NewKey{Npub: testNpub})
	if !errors.Is(err, invite.ErrExhausted) {
		t.Fatalf("got %v, want ErrExhausted", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRedeemDisabledAndExpired(t *testing.T) {
	cases := []struct {
		name    string
		enabled bool
		expires time.Time
		want    error
	}{
		{"disabled", false, time.Now().Add(time.Hour).UTC(), invite.ErrDisabled},
		{"expired", true, time.Now().Add(-time.Hour).UTC(), invite.ErrExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatal(err)
			}
			defer db.Close()

			mock.ExpectBegin()
			mock.ExpectQuery(`select .+ from invites where token=\$1 for update`).
				WithArgs("tok").
				WillReturnRows(inviteRow(mock, "tok", 1, 0, tc.enabled, tc.expires))
			mock.ExpectRollback()

			ledger := NewStore(db).Invites()
			_, err = ledger.Redeem(context.Background(), "tok", invite.NewKey{Npub: testNpub})
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestRedeemUnknownToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`select .+ from invites where token=\$1 for update`).
		WithArgs("nope").
		WillReturnRows(mock.NewRows(inviteCols))
	mock.ExpectRollback()

	ledger := NewStore(db).Invites()
	_, err = ledger.Redeem(context.Background(), "nope", invite.NewKey{Npub: testNpub})
	if !errors.Is(err, invite.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRedeemRejectsBadNpubBeforeTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ledger := NewStore(db).Invites()
	_, err = ledger.Redeem(context.Background(), "tok", invite.NewKey{Npub: "bogus"})
	if !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
	// No transaction was opened.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestInviteSetEnabled(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec(`update invites set enabled=\$2 where id=\$1`).
		WithArgs("inv1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`update invites set enabled=\$2 where id=\$1`).
		WithArgs("missing", true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ledger := NewStore(db).Invites()
	if err := ledger.SetEnabled(context.Background(), "inv1", false); err != nil {
		t.Fatalf("set enabled: %v", err)
	}
	if err := ledger.SetEnabled(context.Background(), "missing", true); !errors.Is(err, invite.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
