// Package sqlparse splits migration SQL into individual statements and
// inspects statements for destructive operations and lock impact.
package sqlparse

import "strings"

// Statement is a single SQL statement extracted from a migration body.
type Statement struct {
	// SQL is the statement text, including its terminating semicolon
	// when one was present in the source.
	SQL string

	// Line is the 1-based line of the first SQL character in the
	// original input, for error reporting.
	Line int
}

// Split splits sql into individual statements by semicolons while
// preserving line numbers. Semicolons inside single-quoted or
// double-quoted strings, line comments, and block comments do not
// terminate a statement. A backslash escapes the following quote
// character inside a string literal.
func Split(sql string) []Statement {
	var statements []Statement
	var current strings.Builder
	currentLine := 1
	stmtStartLine := 1
	seenContent := false

	inSingleQuote := false
	inDoubleQuote := false
	inLineComment := false
	inBlockComment := false

	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		if ch == '\n' {
			currentLine++
			if inLineComment {
				inLineComment = false
			}
		}

		if !inSingleQuote && !inDoubleQuote {
			// Line comment start
			if !inBlockComment && i+1 < len(runes) && ch == '-' && runes[i+1] == '-' {
				inLineComment = true
			}
			// Block comment start
			if !inLineComment && i+1 < len(runes) && ch == '/' && runes[i+1] == '*' {
				inBlockComment = true
			}
			// Block comment end
			if inBlockComment && i+1 < len(runes) && ch == '*' && runes[i+1] == '/' {
				inBlockComment = false
				current.WriteRune(ch)
				i++
				if i < len(runes) {
					current.WriteRune(runes[i])
				}
				continue
			}
		}

		if !inLineComment && !inBlockComment {
			if ch == '\'' && (i == 0 || runes[i-1] != '\\') {
				inSingleQuote = !inSingleQuote
			}
			if ch == '"' && (i == 0 || runes[i-1] != '\\') {
				inDoubleQuote = !inDoubleQuote
			}
		}

		if ch == ';' && !inSingleQuote && !inDoubleQuote && !inLineComment && !inBlockComment {
			current.WriteRune(ch)
			statements = append(statements, Statement{
				SQL:  current.String(),
				Line: stmtStartLine,
			})
			current.Reset()
			seenContent = false
			// The next statement's start line is recorded when its
			// first real character arrives.
			continue
		}

		if !seenContent && !inLineComment && !inBlockComment {
			if ch != ' ' && ch != '\t' && ch != '\n' && ch != '\r' {
				stmtStartLine = currentLine
				seenContent = true
			}
		}

		current.WriteRune(ch)
	}

	if current.Len() > 0 {
		statements = append(statements, Statement{
			SQL:  current.String(),
			Line: stmtStartLine,
		})
	}

	return statements
}

// Executable returns the statements of sql that contain something to
// run: whitespace-only and comment-only entries are dropped and the
// remaining statement text is trimmed.
func Executable(sql string) []Statement {
	var out []Statement
	for _, stmt := range Split(sql) {
		trimmed := strings.TrimSpace(stmt.SQL)
		if trimmed == "" || commentOnly(trimmed) {
			continue
		}
		out = append(out, Statement{SQL: trimmed, Line: stmt.Line})
	}
	return out
}

// commentOnly reports whether sql consists entirely of line comments,
// blank lines, and a bare terminator.
func commentOnly(sql string) bool {
	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == ";" {
			continue
		}
		if !strings.HasPrefix(trimmed, "--") {
			return false
		}
	}
	return true
}
