package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = pq.ErrorCode("23505")

// isUniqueViolation はエラーが一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

// nullString は空文字列をNULLとして扱うsql.NullStringに変換する。
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullStringPtr はsql.NullStringを*stringに変換する。NULLの場合はnilを返す。
func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
