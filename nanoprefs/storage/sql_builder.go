package storage

import (
	"github.com/Masterminds/squirrel"
)

// sqlBuilder builds the statements of the SQLite driver.
type sqlBuilder struct {
	sq    squirrel.StatementBuilderType
	table string
}

func newSQLBuilder(table string) *sqlBuilder {
	return &sqlBuilder{
		sq:    squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		table: table,
	}
}

func (b *sqlBuilder) buildCreateTable() string {
	return "CREATE TABLE IF NOT EXISTS " + b.table + " (" +
		"key TEXT PRIMARY KEY, " +
		"kind TEXT NOT NULL, " +
		"value TEXT NOT NULL)"
}

func (b *sqlBuilder) buildSelectAll() (string, []interface{}, error) {
	return b.sq.Select("key", "kind", "value").From(b.table).OrderBy("key").ToSql()
}

// buildUpsert inserts or replaces a single row.
func (b *sqlBuilder) buildUpsert(key, kind, value string) (string, []interface{}, error) {
	return b.sq.Insert(b.table).
		Columns("key", "kind", "value").
		Values(key, kind, value).
		Suffix("ON CONFLICT(key) DO UPDATE SET kind = excluded.kind, value = excluded.value").
		ToSql()
}

func (b *sqlBuilder) buildDelete(key string) (string, []interface{}, error) {
	return b.sq.Delete(b.table).Where(squirrel.Eq{"key": key}).ToSql()
}

func (b *sqlBuilder) buildTruncate() (string, []interface{}, error) {
	return b.sq.Delete(b.table).ToSql()
}
