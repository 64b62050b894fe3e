// Package datawarehouse provides read-only connectivity to the MS SQL Server data warehouse
// that holds the sales order invoicing view.
package datawarehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb" // MS SQL Server driver
	"github.com/straye-as/order-sync/internal/config"
	"github.com/straye-as/order-sync/internal/retry"
	"go.uber.org/zap"
)

const (
	// Connection attempts used when NewClient is given no policy
	defaultConnectAttempts = 3
	defaultConnectBackoff  = 2 * time.Second

	defaultHealthCheckTimeout = 5 * time.Second
)

var (
	// ErrNotInitialized is returned when queries are issued on a nil or closed client
	ErrNotInitialized = errors.New("data warehouse client not initialized")

	// ErrDisabled is returned by NewClient when the warehouse is disabled in configuration
	ErrDisabled = errors.New("data warehouse disabled")
)

// Client provides read-only access to the MS SQL Server data warehouse.
type Client struct {
	db           *sql.DB
	logger       *zap.Logger
	queryTimeout time.Duration
}

// HealthStatus represents the health check result for the data warehouse connection
type HealthStatus struct {
	Status     string        `json:"status"`
	Latency    time.Duration `json:"latency_ms"`
	Error      string        `json:"error,omitempty"`
	MaxOpen    int           `json:"max_open_connections"`
	Open       int           `json:"open_connections"`
	InUse      int           `json:"in_use"`
	Idle       int           `json:"idle"`
	WaitCount  int64         `json:"wait_count"`
	WaitTimeMs int64         `json:"wait_time_ms"`
}

// ResultSet holds the column names and positional values of a query result
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Record returns row i keyed by column name
func (r *ResultSet) Record(i int) map[string]any {
	rec := make(map[string]any, len(r.Columns))
	for j, col := range r.Columns {
		rec[col] = r.Rows[i][j]
	}
	return rec
}

// Len returns the number of rows
func (r *ResultSet) Len() int {
	return len(r.Rows)
}

// NewClient connects to the data warehouse, retrying connection failures through policy.
// A nil policy makes a few attempts with a fixed backoff. Attempts stop once ctx is cancelled.
func NewClient(ctx context.Context, cfg *config.WarehouseConfig, policy *retry.Policy, logger *zap.Logger) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		logger.Info("Data warehouse connection disabled")
		return nil, ErrDisabled
	}

	if cfg.URL == "" || cfg.User == "" || cfg.Password == "" {
		logger.Error("Data warehouse enabled but missing credentials",
			zap.Bool("url_present", cfg.URL != ""),
			zap.Bool("user_present", cfg.User != ""),
			zap.Bool("password_present", cfg.Password != ""),
		)
		return nil, fmt.Errorf("data warehouse credentials incomplete")
	}

	logger.Info("Initializing data warehouse connection",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
		zap.Int("conn_max_lifetime_seconds", cfg.ConnMaxLifetime),
		zap.Int("query_timeout_seconds", cfg.QueryTimeout),
	)

	connStr, err := buildConnectionString(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	if policy == nil {
		policy = retry.NewPolicy(defaultConnectAttempts, defaultConnectBackoff, IsConnectRetryable, logger)
	}

	var client *Client
	attempt := 0
	err = policy.Do(ctx, "warehouse.connect", func(attemptCtx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		logger.Info("Attempting data warehouse connection",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.MaxAttempts),
		)

		db, err := sql.Open("sqlserver", connStr)
		if err != nil {
			return err
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

		pingCtx, cancel := context.WithTimeout(attemptCtx, defaultHealthCheckTimeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			_ = db.Close()
			return err
		}

		client = newClientFromDB(db, cfg.QueryTimeoutDuration(), logger)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to data warehouse after %d attempts: %w", attempt, err)
	}

	logger.Info("Data warehouse connection established successfully", zap.Int("attempts_taken", attempt))
	return client, nil
}

func newClientFromDB(db *sql.DB, queryTimeout time.Duration, logger *zap.Logger) *Client {
	return &Client{db: db, logger: logger, queryTimeout: queryTimeout}
}

// buildConnectionString constructs a SQL Server connection string from the config.
// URL format expected: host:port/database or host:port (uses default database)
func buildConnectionString(cfg *config.WarehouseConfig) (string, error) {
	urlParts := strings.SplitN(strings.TrimPrefix(cfg.URL, "sqlserver://"), "/", 2)
	hostPort := urlParts[0]
	database := ""
	if len(urlParts) > 1 {
		database = urlParts[1]
	}

	hostParts := strings.SplitN(hostPort, ":", 2)
	host := hostParts[0]
	if host == "" {
		return "", fmt.Errorf("warehouse url has no host")
	}
	port := "1433" // Default SQL Server port
	if len(hostParts) > 1 && hostParts[1] != "" {
		port = hostParts[1]
	}

	query := url.Values{}
	query.Add("encrypt", "true")
	query.Add("TrustServerCertificate", "false")
	query.Add("connection timeout", "30")
	query.Add("app name", "order-sync")
	if database != "" {
		query.Add("database", database)
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%s", host, port),
		RawQuery: query.Encode(),
	}

	return u.String(), nil
}

// Close closes the data warehouse connection pool
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}

	c.logger.Info("Closing data warehouse connection")

	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close data warehouse connection", zap.Error(err))
		return fmt.Errorf("failed to close data warehouse connection: %w", err)
	}
	return nil
}

// HealthCheck pings the warehouse and reports connection pool statistics
func (c *Client) HealthCheck(ctx context.Context) *HealthStatus {
	if c == nil || c.db == nil {
		return &HealthStatus{Status: "disabled"}
	}

	start := time.Now()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultHealthCheckTimeout)
		defer cancel()
	}

	err := c.db.PingContext(ctx)
	latency := time.Since(start)

	stats := c.db.Stats()
	status := &HealthStatus{
		Latency:    latency,
		MaxOpen:    stats.MaxOpenConnections,
		Open:       stats.OpenConnections,
		InUse:      stats.InUse,
		Idle:       stats.Idle,
		WaitCount:  stats.WaitCount,
		WaitTimeMs: stats.WaitDuration.Milliseconds(),
	}

	if err != nil {
		c.logger.Warn("Data warehouse health check failed",
			zap.Error(err),
			zap.Duration("latency", latency),
		)
		status.Status = "unhealthy"
		status.Error = err.Error()
	} else {
		status.Status = "healthy"
	}

	return status
}

// Query executes a read-only query and returns every row with its column names.
// The configured query timeout applies when ctx has no deadline.
func (c *Client) Query(ctx context.Context, query string, args ...any) (*ResultSet, error) {
	if c == nil || c.db == nil {
		return nil, ErrNotInitialized
	}

	if _, ok := ctx.Deadline(); !ok && c.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
	}

	c.logger.Debug("Executing data warehouse query",
		zap.String("query", truncateQuery(query, 200)),
		zap.Int("args_count", len(args)),
	)

	start := time.Now()

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		c.logger.Error("Data warehouse query failed",
			zap.Error(err),
			zap.String("query", truncateQuery(query, 200)),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get column names: %w", err)
	}

	result := &ResultSet{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result.Rows = append(result.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	c.logger.Debug("Data warehouse query completed",
		zap.Int("rows_returned", len(result.Rows)),
		zap.Duration("duration", time.Since(start)),
	)

	return result, nil
}

// IsEnabled returns true if the client is initialized and ready for queries.
func (c *Client) IsEnabled() bool {
	return c != nil && c.db != nil
}

// truncateQuery truncates a query string for logging purposes
func truncateQuery(query string, maxLen int) string {
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen] + "..."
}
