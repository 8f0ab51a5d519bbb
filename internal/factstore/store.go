// File: internal/factstore/store.go

// Package factstore provides read-only access to the SQLite fact database
// produced by the external indexing pipeline. The database is treated as an
// immutable snapshot for the duration of a run; every accessor takes its own
// pooled connection so concurrent discoverers never share a cursor.
package factstore

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// requiredTables is the schema probe set. A snapshot missing any of these
// cannot support discovery and is rejected at open time.
var requiredTables = []string{
	"function_call_args",
	"assignments",
	"variable_usage",
	"sql_queries",
	"env_var_usage",
	"api_endpoints",
	"framework_safe_sinks",
	"validation_framework_usage",
	"orm_models",
	"html_hooks",
	"symbols",
}

// Store is a pooled, read-only accessor over one fact database snapshot.
type Store struct {
	pool *sqlitex.Pool
	log  *zap.Logger

	assignOnce sync.Once
	assignErr  error
	assignIdx  map[assignKey]Assignment
}

type assignKey struct {
	file string
	line int
}

// Open opens the snapshot at path read-only in WAL mode and probes the
// schema. A missing file or an incomplete schema is a hard failure; nothing
// downstream can run without the fact tables.
func Open(ctx context.Context, path string, poolSize int, logger *zap.Logger) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("fact database not found at %q: %w", path, err)
	}
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		Flags:    sqlite.OpenReadOnly | sqlite.OpenWAL,
		PoolSize: poolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("open fact database %q: %w", path, err)
	}

	s := &Store{pool: pool, log: logger.Named("FactStore")}
	if err := s.probeSchema(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	s.log.Debug("Fact database opened.", zap.String("path", path), zap.Int("pool_size", poolSize))
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// probeSchema verifies that every required fact table exists.
func (s *Store) probeSchema(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection for schema probe: %w", err)
	}
	defer s.pool.Put(conn)

	present := make(map[string]bool, len(requiredTables))
	err = sqlitex.Execute(conn,
		`SELECT name FROM sqlite_master WHERE type = 'table'`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				present[stmt.ColumnText(0)] = true
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("schema probe: %w", err)
	}

	var missing []string
	for _, table := range requiredTables {
		if !present[table] {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("fact database schema incomplete, missing tables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// CallArgs returns every function call argument record.
func (s *Store) CallArgs(ctx context.Context) ([]CallArg, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer s.pool.Put(conn)

	var out []CallArg
	err = sqlitex.Execute(conn,
		`SELECT file, line, caller_function, callee_function,
		        COALESCE(argument_index, 0), COALESCE(argument_expr, ''),
		        COALESCE(param_name, ''), COALESCE(callee_file_path, '')
		 FROM function_call_args`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, CallArg{
					File:       stmt.ColumnText(0),
					Line:       stmt.ColumnInt(1),
					Caller:     stmt.ColumnText(2),
					Callee:     stmt.ColumnText(3),
					ArgIndex:   stmt.ColumnInt(4),
					ArgExpr:    stmt.ColumnText(5),
					ParamName:  stmt.ColumnText(6),
					CalleeFile: stmt.ColumnText(7),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("read function_call_args: %w", err)
	}
	return out, nil
}

// Assignments returns every assignment record, ordered by file then line so
// backward proximity searches can scan deterministically.
func (s *Store) Assignments(ctx context.Context) ([]Assignment, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer s.pool.Put(conn)

	var out []Assignment
	err = sqlitex.Execute(conn,
		`SELECT file, line, target_var, COALESCE(source_expr, ''),
		        COALESCE(source_vars, ''), COALESCE(in_function, '')
		 FROM assignments ORDER BY file, line`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, Assignment{
					File:       stmt.ColumnText(0),
					Line:       stmt.ColumnInt(1),
					TargetVar:  stmt.ColumnText(2),
					SourceExpr: stmt.ColumnText(3),
					SourceVars: stmt.ColumnText(4),
					InFunction: stmt.ColumnText(5),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("read assignments: %w", err)
	}
	return out, nil
}

// AssignmentAt returns the assignment at an exact file+line, if one exists.
// The full assignment set is loaded once and indexed in memory; snapshot
// immutability makes the cache safe for the lifetime of the store.
func (s *Store) AssignmentAt(ctx context.Context, file string, line int) (Assignment, bool, error) {
	s.assignOnce.Do(func() {
		all, err := s.Assignments(ctx)
		if err != nil {
			s.assignErr = err
			return
		}
		s.assignIdx = make(map[assignKey]Assignment, len(all))
		for _, a := range all {
			s.assignIdx[assignKey{a.File, a.Line}] = a
		}
	})
	if s.assignErr != nil {
		return Assignment{}, false, s.assignErr
	}
	a, ok := s.assignIdx[assignKey{file, line}]
	return a, ok, nil
}

// VariableAccesses returns every variable usage record.
func (s *Store) VariableAccesses(ctx context.Context) ([]VariableAccess, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer s.pool.Put(conn)

	var out []VariableAccess
	err = sqlitex.Execute(conn,
		`SELECT file, line, variable_name FROM variable_usage`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, VariableAccess{
					File: stmt.ColumnText(0),
					Line: stmt.ColumnInt(1),
					Name: stmt.ColumnText(2),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("read variable_usage: %w", err)
	}
	return out, nil
}

// SQLQueries returns every extracted SQL query record.
func (s *Store) SQLQueries(ctx context.Context) ([]SQLQuery, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer s.pool.Put(conn)

	var out []SQLQuery
	err = sqlitex.Execute(conn,
		`SELECT file_path, line_number, query_text, COALESCE(is_parameterized, 0)
		 FROM sql_queries`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, SQLQuery{
					File:            stmt.ColumnText(0),
					Line:            stmt.ColumnInt(1),
					Text:            stmt.ColumnText(2),
					IsParameterized: stmt.ColumnBool(3),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("read sql_queries: %w", err)
	}
	return out, nil
}

// EnvAccesses returns every environment variable usage record.
func (s *Store) EnvAccesses(ctx context.Context) ([]EnvAccess, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer s.pool.Put(conn)

	var out []EnvAccess
	err = sqlitex.Execute(conn,
		`SELECT file, line, key FROM env_var_usage`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, EnvAccess{
					File: stmt.ColumnText(0),
					Line: stmt.ColumnInt(1),
					Key:  stmt.ColumnText(2),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("read env_var_usage: %w", err)
	}
	return out, nil
}

// Endpoints returns every registered API endpoint record.
func (s *Store) Endpoints(ctx context.Context) ([]EndpointRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer s.pool.Put(conn)

	var out []EndpointRecord
	err = sqlitex.Execute(conn,
		`SELECT method, path, file, line FROM api_endpoints`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, EndpointRecord{
					Method: stmt.ColumnText(0),
					Path:   stmt.ColumnText(1),
					File:   stmt.ColumnText(2),
					Line:   stmt.ColumnInt(3),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("read api_endpoints: %w", err)
	}
	return out, nil
}

// SafeSinks returns every framework safe-sink allowlist record.
func (s *Store) SafeSinks(ctx context.Context) ([]SafeSink, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer s.pool.Put(conn)

	var out []SafeSink
	err = sqlitex.Execute(conn,
		`SELECT sink_pattern, COALESCE(is_safe, 0), COALESCE(framework, '')
		 FROM framework_safe_sinks`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, SafeSink{
					Pattern:   stmt.ColumnText(0),
					IsSafe:    stmt.ColumnBool(1),
					Framework: stmt.ColumnText(2),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("read framework_safe_sinks: %w", err)
	}
	return out, nil
}

// Validators returns every validation framework usage record.
func (s *Store) Validators(ctx context.Context) ([]ValidatorUsage, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer s.pool.Put(conn)

	var out []ValidatorUsage
	err = sqlitex.Execute(conn,
		`SELECT file, line, COALESCE(framework, ''), COALESCE(method, ''), COALESCE(kind, '')
		 FROM validation_framework_usage`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, ValidatorUsage{
					File:      stmt.ColumnText(0),
					Line:      stmt.ColumnInt(1),
					Framework: stmt.ColumnText(2),
					Method:    stmt.ColumnText(3),
					Kind:      stmt.ColumnText(4),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("read validation_framework_usage: %w", err)
	}
	return out, nil
}

// ORMModels returns every ORM model registration record.
func (s *Store) ORMModels(ctx context.Context) ([]ORMModel, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer s.pool.Put(conn)

	var out []ORMModel
	err = sqlitex.Execute(conn,
		`SELECT name, COALESCE(framework, ''), COALESCE(language, ''), COALESCE(table_name, '')
		 FROM orm_models`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, ORMModel{
					Name:      stmt.ColumnText(0),
					Framework: stmt.ColumnText(1),
					Language:  stmt.ColumnText(2),
					Table:     stmt.ColumnText(3),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("read orm_models: %w", err)
	}
	return out, nil
}

// HTMLHooks returns every dangerous-HTML-construct record.
func (s *Store) HTMLHooks(ctx context.Context) ([]HTMLHook, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer s.pool.Put(conn)

	var out []HTMLHook
	err = sqlitex.Execute(conn,
		`SELECT file, line, hook_name FROM html_hooks`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, HTMLHook{
					File: stmt.ColumnText(0),
					Line: stmt.ColumnInt(1),
					Name: stmt.ColumnText(2),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("read html_hooks: %w", err)
	}
	return out, nil
}

// Symbols returns every symbol record of the given kind, for example
// "function" or "property".
func (s *Store) Symbols(ctx context.Context, kind string) ([]Symbol, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer s.pool.Put(conn)

	var out []Symbol
	err = sqlitex.Execute(conn,
		`SELECT path, line, name, type, COALESCE(params, '') FROM symbols WHERE type = ?`,
		&sqlitex.ExecOptions{
			Args: []any{kind},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, Symbol{
					File:   stmt.ColumnText(0),
					Line:   stmt.ColumnInt(1),
					Name:   stmt.ColumnText(2),
					Kind:   stmt.ColumnText(3),
					Params: stmt.ColumnText(4),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("read symbols: %w", err)
	}
	return out, nil
}
