package evallog

import (
	"strings"
	"testing"
)

func TestPostgresSQL_QuotesTable(t *testing.T) {
	create := createTableSQL(`evals"; DROP TABLE x; --`)
	if !strings.Contains(create, `"evals""; DROP TABLE x; --"`) {
		t.Errorf("table name not quoted: %s", create)
	}

	insert := insertSQL("evaluation_records")
	if !strings.HasPrefix(insert, `INSERT INTO "evaluation_records"`) {
		t.Errorf("insertSQL() = %s", insert)
	}
}

func TestResponseJSON(t *testing.T) {
	got := responseJSON(`{"score":90}`)
	if !got.Valid || string(got.RawMessage) != `{"score":90}` {
		t.Errorf("responseJSON(valid) = %+v", got)
	}
	if responseJSON("not json").Valid {
		t.Error("invalid JSON should map to NULL")
	}
}

func TestNewPostgresSinkFromPool_DefaultTable(t *testing.T) {
	s := NewPostgresSinkFromPool(nil, "")
	if s.table != DefaultPostgresTable {
		t.Errorf("table = %q", s.table)
	}
	if s.Name() != "postgres" {
		t.Errorf("Name() = %q", s.Name())
	}
}
