package library

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
)

const (
	selectTagByName = `SELECT id, name, created_at FROM tags WHERE name = ?`
	insertTag       = `INSERT INTO tags (name, created_at) VALUES (?, ?)`
)

func newMockTagRepo(t *testing.T) (TagRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewTagRepository(db), mock
}

func tagRow(id int64, name string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "created_at"}).
		AddRow(id, name, time.Now())
}

func TestGetOrCreate_ReturnsExistingTag(t *testing.T) {
	repo, mock := newMockTagRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectTagByName)).
		WithArgs("sunset").
		WillReturnRows(tagRow(7, "sunset"))

	tag, err := repo.GetOrCreate(context.Background(), "sunset")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if tag.ID != 7 || tag.Name != "sunset" {
		t.Errorf("got tag {%d %q}, want {7 %q}", tag.ID, tag.Name, "sunset")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetOrCreate_InsertsWhenAbsent(t *testing.T) {
	repo, mock := newMockTagRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectTagByName)).
		WithArgs("sunset").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(insertTag)).
		WithArgs("sunset", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(42, 1))

	tag, err := repo.GetOrCreate(context.Background(), "sunset")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if tag.ID != 42 {
		t.Errorf("got tag ID %d, want 42", tag.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// Two callers racing on the same new name: the loser's insert hits the
// unique key on tags.name and must recover by re-fetching the winner's row,
// so exactly one tag row ever exists per canonical name.
func TestGetOrCreate_DuplicateInsertRefetches(t *testing.T) {
	repo, mock := newMockTagRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectTagByName)).
		WithArgs("sunset").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(insertTag)).
		WithArgs("sunset", sqlmock.AnyArg()).
		WillReturnError(&mysql.MySQLError{
			Number:  1062,
			Message: "Duplicate entry 'sunset' for key 'name'",
		})
	mock.ExpectQuery(regexp.QuoteMeta(selectTagByName)).
		WithArgs("sunset").
		WillReturnRows(tagRow(7, "sunset"))

	tag, err := repo.GetOrCreate(context.Background(), "sunset")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if tag.ID != 7 || tag.Name != "sunset" {
		t.Errorf("got tag {%d %q}, want the winner's row {7 %q}", tag.ID, tag.Name, "sunset")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetOrCreate_OtherInsertErrorPropagates(t *testing.T) {
	repo, mock := newMockTagRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectTagByName)).
		WithArgs("sunset").
		WillReturnError(sql.ErrNoRows)
	// Deadlock, not a duplicate key: no re-fetch, the caller gets the error.
	mock.ExpectExec(regexp.QuoteMeta(insertTag)).
		WithArgs("sunset", sqlmock.AnyArg()).
		WillReturnError(&mysql.MySQLError{
			Number:  1213,
			Message: "Deadlock found when trying to get lock",
		})

	if _, err := repo.GetOrCreate(context.Background(), "sunset"); err == nil {
		t.Fatal("GetOrCreate() error = nil, want deadlock error propagated")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
