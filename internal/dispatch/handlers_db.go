package dispatch

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/flowforge/workflow-core/internal/builder"
	"github.com/flowforge/workflow-core/internal/ctxstore"
	"github.com/flowforge/workflow-core/internal/domain"
)

// newDBHandler wires a db node to bun over the shared *sql.DB (opened with
// pgdriver by the caller that builds Dependencies). Queries are plain SQL
// with positional args, bun's raw-query path rather than its ORM query
// builder, since a workflow's db node config is a string template, not a
// Go struct to map rows onto.
func newDBHandler(deps Dependencies) Handler {
	return HandlerFunc(func(ctx context.Context, node *builder.ExecutableNode, resolved map[string]any, snap *ctxstore.Snapshot) (Result, error) {
		query, _ := resolved["query"].(string)
		if query == "" {
			return Result{}, &domain.NodeError{Type: domain.NodeErrValidation, Message: "db node has no query"}
		}

		if deps.SQL == nil {
			return Result{}, &domain.NodeError{Type: domain.NodeErrOther, Message: "no database connection configured"}
		}
		db := bun.NewDB(deps.SQL, pgdialect.New())

		args := resolved["args"]
		argSlice, _ := args.([]any)

		rows, err := db.QueryContext(ctx, query, argSlice...)
		if err != nil {
			return Result{}, classifyDBError(err)
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return Result{}, &domain.NodeError{Type: domain.NodeErrServer, Message: err.Error(), Retryable: true}
		}

		var results []map[string]any
		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return Result{}, &domain.NodeError{Type: domain.NodeErrServer, Message: err.Error(), Retryable: true}
			}
			row := make(map[string]any, len(cols))
			for i, c := range cols {
				row[c] = values[i]
			}
			results = append(results, row)
		}
		if err := rows.Err(); err != nil {
			return Result{}, classifyDBError(err)
		}

		return Result{Output: map[string]any{"rows": results, "rowCount": len(results)}}, nil
	})
}

func classifyDBError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.NodeError{Type: domain.NodeErrTimeout, Message: err.Error(), Retryable: true}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NodeError{Type: domain.NodeErrNotFound, Message: err.Error()}
	}
	return &domain.NodeError{Type: domain.NodeErrServer, Message: err.Error(), Retryable: true}
}
