package engines

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite" // pure Go driver, registers "sqlite"

	"github.com/searxng/searxng-sub003/internal/config"
	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/results"
	"github.com/searxng/searxng-sub003/internal/search"
)

func init() {
	Register("sqlite", search.KindLocal, []string{"general"}, newSQLiteEngine)
}

// sqliteEngine runs a parameterized query against a local SQLite database.
//
// Options:
//
//	path            database file, required
//	query           SQL using :query, :limit and :offset, required
//	template        result template, default "key-value"
//	url_column, title_column, content_column
//	page_size       rows per page, default 10
//
// Every column of a row is kept in Extra; the *_column options also copy a
// column into the matching record field.
type sqliteEngine struct {
	name     string
	path     string
	query    string
	pageSize int
	template results.Template
	columns  map[string]string
	db       *sql.DB
}

type sqliteRequest struct {
	args []any
}

func newSQLiteEngine(cfg config.EngineConfig) (search.Adapter, error) {
	path, err := requireOption(cfg, "path")
	if err != nil {
		return nil, err
	}
	query, err := requireOption(cfg, "query")
	if err != nil {
		return nil, err
	}
	if !strings.Contains(query, ":query") {
		return nil, fmt.Errorf("query must reference :query")
	}
	pageSize, err := optionInt(cfg, "page_size", 10)
	if err != nil {
		return nil, err
	}
	if pageSize == 0 {
		pageSize = 10
	}

	// Read-only: the engine never writes to the database.
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(4)

	return &sqliteEngine{
		name:     cfg.Name,
		path:     path,
		query:    query,
		pageSize: pageSize,
		template: results.Template(cfg.Option("template", string(results.TemplateKeyValue))),
		columns: map[string]string{
			"url":     cfg.Option("url_column", ""),
			"title":   cfg.Option("title_column", ""),
			"content": cfg.Option("content_column", ""),
		},
		db: db,
	}, nil
}

// Validate implements search.Validator.
func (e *sqliteEngine) Validate() error {
	info, err := os.Stat(e.path)
	if err != nil {
		return serrors.EngineConfigError(e.name, fmt.Sprintf("engine %q: database %s is not readable", e.name, e.path), err)
	}
	if info.IsDir() {
		return serrors.EngineConfigError(e.name, fmt.Sprintf("engine %q: database %s is a directory", e.name, e.path), nil)
	}
	return nil
}

// BuildRequest implements search.Adapter.
func (e *sqliteEngine) BuildRequest(q *search.Query, _ *search.EngineState) (*search.RequestDescriptor, error) {
	args := []any{sql.Named("query", q.Text)}
	if strings.Contains(e.query, ":limit") {
		args = append(args, sql.Named("limit", e.pageSize))
	}
	if strings.Contains(e.query, ":offset") {
		args = append(args, sql.Named("offset", (q.PageNo-1)*e.pageSize))
	}
	return &search.RequestDescriptor{Handle: sqliteRequest{args: args}}, nil
}

// Execute implements search.Executor.
func (e *sqliteEngine) Execute(ctx context.Context, req *search.RequestDescriptor) (*search.RawResponse, error) {
	r, ok := req.Handle.(sqliteRequest)
	if !ok {
		return nil, serrors.InternalError(fmt.Sprintf("engine %q got a foreign request", e.name), nil)
	}

	rows, err := e.db.QueryContext(ctx, e.query, r.args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, serrors.InternalError(fmt.Sprintf("engine %q query failed", e.name), err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, serrors.InternalError(fmt.Sprintf("engine %q query failed", e.name), err)
	}

	var out []map[string]string
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, serrors.InternalError(fmt.Sprintf("engine %q scan failed", e.name), err)
		}
		row := make(map[string]string, len(cols))
		for i, c := range cols {
			if values[i].Valid {
				row[c] = values[i].String
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, serrors.InternalError(fmt.Sprintf("engine %q query failed", e.name), err)
	}
	return &search.RawResponse{Rows: out}, nil
}

// ParseResponse implements search.Adapter.
func (e *sqliteEngine) ParseResponse(_ *search.Query, raw *search.RawResponse) (*results.Batch, error) {
	rows, ok := raw.Rows.([]map[string]string)
	if !ok && raw.Rows != nil {
		return nil, serrors.ParseError(fmt.Sprintf("engine %q got rows of type %T", e.name, raw.Rows), nil)
	}

	batch := &results.Batch{}
	for _, row := range rows {
		rec := results.Record{
			Template: e.template,
			URL:      row[e.columns["url"]],
			Title:    row[e.columns["title"]],
			Content:  row[e.columns["content"]],
			Extra:    row,
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

// Close implements search.Closer.
func (e *sqliteEngine) Close() error {
	return e.db.Close()
}
