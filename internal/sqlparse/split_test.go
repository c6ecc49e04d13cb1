package sqlparse

import (
	"strings"
	"testing"
)

func TestSplitStatementCounts(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want int
	}{
		{
			name: "semicolon inside single-quoted string",
			sql:  "INSERT INTO t VALUES ('a;b'); INSERT INTO t VALUES (1);",
			want: 2,
		},
		{
			name: "semicolon inside double-quoted identifier",
			sql:  `CREATE TABLE "odd;name" (id TEXT); SELECT 1;`,
			want: 2,
		},
		{
			name: "escaped quote inside string",
			sql:  `INSERT INTO t VALUES ('it\'s; still one'); SELECT 1;`,
			want: 2,
		},
		{
			name: "semicolon inside line comment",
			sql:  "SELECT 1 -- trailing; note\n, 2;",
			want: 1,
		},
		{
			name: "semicolon inside block comment",
			sql:  "SELECT 1 /* not; here */ , 2;",
			want: 1,
		},
		{
			name: "final statement without terminator",
			sql:  "SELECT 1; SELECT 2",
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.sql)
			if len(got) != tt.want {
				t.Fatalf("expected %d statements, got %d: %#v", tt.want, len(got), got)
			}
		})
	}
}

func TestSplitPreservesQuotedSemicolon(t *testing.T) {
	stmts := Split("INSERT INTO t VALUES ('a;b'); INSERT INTO t VALUES (1);")

	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(stmts))
	}
	if !strings.Contains(stmts[0].SQL, "'a;b'") {
		t.Errorf("first statement lost the quoted semicolon: %q", stmts[0].SQL)
	}
	if strings.TrimSpace(stmts[1].SQL) != "INSERT INTO t VALUES (1);" {
		t.Errorf("unexpected second statement: %q", stmts[1].SQL)
	}
}

func TestSplitLineNumbers(t *testing.T) {
	sql := `-- setup
CREATE TABLE users (
  id TEXT PRIMARY KEY
);

-- teardown
DROP TABLE users;`

	stmts := Split(sql)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(stmts))
	}
	if stmts[0].Line != 2 { // CREATE TABLE
		t.Errorf("expected first statement on line 2, got %d", stmts[0].Line)
	}
	if stmts[1].Line != 7 { // DROP TABLE
		t.Errorf("expected second statement on line 7, got %d", stmts[1].Line)
	}
}

func TestExecutableSkipsCommentOnlyStatements(t *testing.T) {
	sql := "-- header comment\n;\nCREATE TABLE t (id TEXT);\n\n-- trailing note\n"

	stmts := Executable(sql)
	if len(stmts) != 1 {
		t.Fatalf("expected 1 executable statement, got %d: %#v", len(stmts), stmts)
	}
	if stmts[0].SQL != "CREATE TABLE t (id TEXT);" {
		t.Errorf("unexpected statement text: %q", stmts[0].SQL)
	}
	if stmts[0].Line != 3 {
		t.Errorf("expected line 3, got %d", stmts[0].Line)
	}
}
