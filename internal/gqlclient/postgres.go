package gqlclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// resolveSQL runs a GraphQL operation inside the database through the
// pg_graphql extension. The jsonb result is cast to text so it decodes through
// the same path as an HTTP body.
const resolveSQL = `SELECT graphql.resolve(query => $1, variables => $2::jsonb, "operationName" => $3)::text`

// IsPostgresEndpoint reports whether endpoint is a PostgreSQL connection URL.
func IsPostgresEndpoint(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return u.Scheme == "postgres" || u.Scheme == "postgresql"
}

// PostgresTransport executes GraphQL requests by calling graphql.resolve over
// a pgx pool, bypassing the HTTP gateway.
type PostgresTransport struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresTransport creates the pool. Connections are opened lazily. When
// readOnly is set every session defaults to read-only transactions.
func NewPostgresTransport(ctx context.Context, connString string, readOnly bool, logger zerolog.Logger) (*PostgresTransport, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec
	if readOnly {
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if _, err := conn.Exec(ctx, "SET default_transaction_read_only = on"); err != nil {
				return fmt.Errorf("failed to SET default_transaction_read_only: %w", err)
			}
			return nil
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &PostgresTransport{pool: pool, logger: logger}, nil
}

// Execute runs one operation through graphql.resolve.
func (t *PostgresTransport) Execute(ctx context.Context, req Request) (*Response, error) {
	if _, err := req.Encode(); err != nil {
		return nil, err
	}
	vars := req.Variables
	if vars == nil {
		vars = map[string]any{}
	}
	varsJSON, err := json.Marshal(vars)
	if err != nil {
		return nil, Validationf("failed to encode variables: %v", err)
	}
	var opName *string
	if req.OperationName != "" {
		opName = &req.OperationName
	}

	t.logger.Debug().
		Str("operation", req.OperationName).
		Msg("resolving GraphQL request in database")

	var out string
	if err := t.pool.QueryRow(ctx, resolveSQL, req.Query, string(varsJSON), opName).Scan(&out); err != nil {
		return nil, classifyPgError(err)
	}
	return DecodeBody([]byte(out))
}

// Close closes the pool.
func (t *PostgresTransport) Close() {
	t.pool.Close()
}

// classifyPgError separates server-reported SQL errors from failures to reach
// the server at all.
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return databaseError(err)
	}
	return networkError(err)
}
