package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"nostrgate.org/internal/access"
)

var keyCols = []string{"id", "npub", "nip05", "profile_name", "status", "policy_id", "group_id", "expires_at", "created_at"}

func TestKeyFindMapsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectQuery(`select .+ from keys where id=\$1`).
		WithArgs("missing").
		WillReturnRows(mock.NewRows(keyCols))

	_, err = NewStore(db).Keys(context.Background()).Find(context.Background(), "missing")
	if !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestKeyFindScansNullColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	created := time.Now().UTC()
	mock.ExpectQuery(`select .+ from keys where id=\$1`).
		WithArgs("k1").
		WillReturnRows(mock.NewRows(keyCols).
			AddRow("k1", testNpub, nil, nil, true, nil, nil, nil, created))

	key, err := NewStore(db).Keys(context.Background()).Find(context.Background(), "k1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if key.Nip05 != "" || key.PolicyID != "" || key.GroupID != "" || key.ExpiresAt != nil {
		t.Fatalf("null columns must scan to zero values, got %+v", key)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestKeyToggleReturnsUpdatedRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectQuery(`update keys set status = not status where id=\$1`).
		WithArgs("k1").
		WillReturnRows(mock.NewRows(keyCols).
			AddRow("k1", testNpub, nil, nil, false, nil, nil, nil, time.Now().UTC()))

	key, err := NewStore(db).Keys(context.Background()).Toggle(context.Background(), "k1")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if key.Status {
		t.Fatal("toggle must return the flipped status")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestKeyDeleteMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec(`delete from keys where id=\$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewStore(db).Keys(context.Background()).Delete(context.Background(), "missing")
	if !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestKeyCreateRejectsBadNpub(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	err = NewStore(db).Keys(context.Background()).Create(context.Background(), &access.Key{Npub: "bogus"})
	if !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
	// No SQL was issued.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPolicyRoundTripColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	created := time.Now().UTC()
	mock.ExpectQuery(`select .+ from policies where id=\$1`).
		WithArgs("p1").
		WillReturnRows(mock.NewRows([]string{"id", "name", "active_days", "time_start", "time_end", "expiry_days", "created_at"}).
			AddRow("p1", "weekdays", "mon,tue,wed", 540, 1020, nil, created))

	p, err := NewStore(db).Policies(context.Background()).Find(context.Background(), "p1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !p.ActiveDays.Has(time.Monday) || p.ActiveDays.Has(time.Sunday) {
		t.Fatalf("active days = %s", p.ActiveDays)
	}
	if p.TimeStart.String() != "09:00" || p.TimeEnd.String() != "17:00" {
		t.Fatalf("window = %s-%s", p.TimeStart, p.TimeEnd)
	}
	if p.ExpiryDays != 0 {
		t.Fatalf("null expiry_days must scan to 0, got %d", p.ExpiryDays)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGroupMembersQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectQuery(`select .+ from keys where group_id=\$1`).
		WithArgs("g1").
		WillReturnRows(mock.NewRows(keyCols).
			AddRow("k1", testNpub, nil, nil, true, nil, "g1", nil, time.Now().UTC()))

	members, err := NewStore(db).Groups(context.Background()).Members(context.Background(), "g1")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0].GroupID != "g1" {
		t.Fatalf("members = %+v", members)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
