package store

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/Combine-Capital/vigil/pkg/database"
	"github.com/Combine-Capital/vigil/pkg/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
)

func newMockEngine(t *testing.T) (*PostgresEngine, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mock.Close)
	return NewPostgresEngine(database.NewWithPool(mock)), mock
}

func TestPostgresGet(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		engine, mock := newMockEngine(t)
		mock.ExpectQuery("SELECT data FROM vigil_entities").
			WithArgs("Sensor", "7").
			WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow([]byte(`{"id":7}`)))

		data, ok, err := engine.Get(ctx, "Sensor", "7")
		if err != nil || !ok || string(data) != `{"id":7}` {
			t.Errorf("Get() = %s, %v, %v", data, ok, err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		engine, mock := newMockEngine(t)
		mock.ExpectQuery("SELECT data FROM vigil_entities").
			WithArgs("Sensor", "8").
			WillReturnRows(pgxmock.NewRows([]string{"data"}))

		_, ok, err := engine.Get(ctx, "Sensor", "8")
		if err != nil || ok {
			t.Errorf("Get() ok = %v, err = %v, want false, nil", ok, err)
		}
	})

	t.Run("connection lost", func(t *testing.T) {
		engine, mock := newMockEngine(t)
		mock.ExpectQuery("SELECT data FROM vigil_entities").WillReturnError(stderrors.New("connection reset"))

		_, _, err := engine.Get(ctx, "Sensor", "9")
		if !errors.IsUnavailable(err) {
			t.Errorf("Get() error = %v, want unavailable", err)
		}
	})
}

func TestPostgresScan(t *testing.T) {
	engine, mock := newMockEngine(t)
	mock.ExpectQuery("SELECT id, data FROM vigil_entities").
		WithArgs("Location").
		WillReturnRows(pgxmock.NewRows([]string{"id", "data"}).
			AddRow("1", []byte(`{"id":1}`)).
			AddRow("2", []byte(`{"id":2}`)))

	var ids []string
	err := engine.Scan(context.Background(), "Location", func(id string, _ []byte) error {
		ids = append(ids, id)
		return nil
	})
	if err != nil || len(ids) != 2 {
		t.Errorf("Scan() ids = %v, err = %v", ids, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}

func TestPostgresApply(t *testing.T) {
	ctx := context.Background()

	t.Run("commits batch", func(t *testing.T) {
		engine, mock := newMockEngine(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO vigil_entities").
			WithArgs("Sensor", "1", []byte(`{}`)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("UPDATE vigil_entities").
			WithArgs("Sensor", "2", []byte(`{}`)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("DELETE FROM vigil_entities").
			WithArgs("Sensor", "3").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectCommit()

		n, err := engine.Apply(ctx, []Mutation{
			{Kind: "Sensor", ID: "1", Op: OpInsert, Data: []byte(`{}`)},
			{Kind: "Sensor", ID: "2", Op: OpUpdate, Data: []byte(`{}`)},
			{Kind: "Sensor", ID: "3", Op: OpDelete},
		})
		if err != nil || n != 2 {
			t.Errorf("Apply() = %d, %v, want 2, nil", n, err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %s", err)
		}
	})

	t.Run("unique violation is a conflict", func(t *testing.T) {
		engine, mock := newMockEngine(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO vigil_entities").
			WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})
		mock.ExpectRollback()

		_, err := engine.Apply(ctx, []Mutation{{Kind: "Sensor", ID: "1", Op: OpInsert, Data: []byte(`{}`)}})
		if !errors.IsConflict(err) {
			t.Errorf("Apply() error = %v, want conflict", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %s", err)
		}
	})

	t.Run("update of missing row is not found", func(t *testing.T) {
		engine, mock := newMockEngine(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE vigil_entities").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		_, err := engine.Apply(ctx, []Mutation{{Kind: "Sensor", ID: "4", Op: OpUpdate, Data: []byte(`{}`)}})
		if !errors.IsNotFound(err) {
			t.Errorf("Apply() error = %v, want not found", err)
		}
	})
}

func TestPostgresEnsureSchema(t *testing.T) {
	engine, mock := newMockEngine(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS vigil_entities").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	if err := engine.EnsureSchema(context.Background()); err != nil {
		t.Errorf("EnsureSchema() error = %v", err)
	}
}
