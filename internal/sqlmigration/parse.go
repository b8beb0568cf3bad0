package sqlmigration

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// script is a parsed SQL script.
type script struct {
	stmts []*pg_query.RawStmt
	sql   string
}

// parseScript parses a PostgreSQL script. Empty or whitespace-only input
// yields zero statements.
func parseScript(sql string) (*script, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return &script{sql: sql}, nil
	}

	tree, err := pg_query.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parsing SQL: %w", err)
	}

	return &script{stmts: tree.Stmts, sql: sql}, nil
}

// statementCount returns the number of top-level statements.
func (s *script) statementCount() int {
	return len(s.stmts)
}

// needsNoTransaction reports whether any statement is a CREATE INDEX
// CONCURRENTLY or DROP INDEX CONCURRENTLY, neither of which can run inside a
// transaction block.
func (s *script) needsNoTransaction() bool {
	for _, stmt := range s.stmts {
		switch node := stmt.Stmt.Node.(type) {
		case *pg_query.Node_IndexStmt:
			if node.IndexStmt != nil && node.IndexStmt.Concurrent {
				return true
			}
		case *pg_query.Node_DropStmt:
			if node.DropStmt != nil && node.DropStmt.Concurrent &&
				node.DropStmt.RemoveType == pg_query.ObjectType_OBJECT_INDEX {
				return true
			}
		}
	}

	return false
}
