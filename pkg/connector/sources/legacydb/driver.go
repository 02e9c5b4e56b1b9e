package legacydb

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/shepherd/pkg/errors"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"
)

// Supported dialects.
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

// rows is the cursor shape shared by pgx and database/sql.
type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// database hides the driver behind the handful of calls the phases need.
type database interface {
	query(ctx context.Context, sql string, args ...any) (rows, error)
	ping(ctx context.Context) error
	close()
}

func open(ctx context.Context, dialect, dsn string, maxConns int) (database, error) {
	switch dialect {
	case DialectPostgres:
		return openPostgres(ctx, dsn, maxConns)
	case DialectMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse mysql dsn")
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		return openSQL("mysql", cfg.FormatDSN(), maxConns)
	case DialectSQLite:
		return openSQL("sqlite3", dsn, maxConns)
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown database dialect %q", dialect)
	}
}

type pgxDatabase struct {
	pool *pgxpool.Pool
}

func openPostgres(ctx context.Context, dsn string, maxConns int) (*pgxDatabase, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse connection string")
	}
	poolConfig.MaxConns = int32(maxConns)
	poolConfig.MinConns = 1
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create connection pool")
	}
	return &pgxDatabase{pool: pool}, nil
}

func (d *pgxDatabase) query(ctx context.Context, sql string, args ...any) (rows, error) {
	r, err := d.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (d *pgxDatabase) ping(ctx context.Context) error { return d.pool.Ping(ctx) }
func (d *pgxDatabase) close()                         { d.pool.Close() }

type sqlDatabase struct {
	db *sql.DB
}

func openSQL(driver, dsn string, maxConns int) (*sqlDatabase, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to open database").
			WithDetail("driver", driver)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &sqlDatabase{db: db}, nil
}

func (d *sqlDatabase) query(ctx context.Context, query string, args ...any) (rows, error) {
	r, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{r}, nil
}

func (d *sqlDatabase) ping(ctx context.Context) error { return d.db.PingContext(ctx) }
func (d *sqlDatabase) close()                         { _ = d.db.Close() }

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() { _ = r.Rows.Close() }

// selectQuery builds one SELECT. Conditions are written with ? placeholders
// and rewritten for the dialect when built. The table name is quoted since
// "groups" is reserved in MySQL 8.
type selectQuery struct {
	columns string
	table   string
	where   []string
	args    []any
	order   string
}

func selectFrom(table, columns string) *selectQuery {
	return &selectQuery{table: table, columns: columns}
}

func (q *selectQuery) Where(cond string, args ...any) *selectQuery {
	q.where = append(q.where, cond)
	q.args = append(q.args, args...)
	return q
}

func (q *selectQuery) OrderBy(order string) *selectQuery {
	q.order = order
	return q
}

func (q *selectQuery) Build(dialect string) (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(q.columns)
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(dialect, q.table))
	if len(q.where) > 0 {
		sb.WriteString(" WHERE (")
		sb.WriteString(strings.Join(q.where, ") AND ("))
		sb.WriteString(")")
	}
	if q.order != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(q.order)
	}
	query := sb.String()
	if dialect == DialectPostgres {
		query = numberPlaceholders(query)
	}
	return query, q.args
}

func quoteIdent(dialect, name string) string {
	if dialect == DialectMySQL {
		return "`" + name + "`"
	}
	return `"` + name + `"`
}

func numberPlaceholders(query string) string {
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
