package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"binary-trader-go/order"
)

// trade_id 不加唯一约束：同一订单的 OPEN 与 CLOSE 各占一行，
// 重复写入也必须保留。
const schemaSQL = `
CREATE TABLE IF NOT EXISTS trades (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  timestamp TEXT NOT NULL,
  status TEXT NOT NULL,
  trade_id TEXT NOT NULL,
  asset TEXT NOT NULL,
  direction TEXT NOT NULL,
  kind TEXT NOT NULL DEFAULT '',
  stake TEXT NOT NULL,
  payout TEXT NOT NULL,
  outcome TEXT NOT NULL DEFAULT '',
  regime TEXT NOT NULL DEFAULT '',
  reason TEXT NOT NULL DEFAULT '',
  entry_price TEXT NOT NULL DEFAULT '',
  profit TEXT NOT NULL DEFAULT '',
  open_time TEXT NOT NULL DEFAULT '',
  close_time TEXT NOT NULL DEFAULT '',
  duration_sec TEXT NOT NULL DEFAULT '',
  source TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_trades_trade_id ON trades(trade_id);
CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status, timestamp);
`

// SQLiteStore 只追加的 sqlite 结果存储。
type SQLiteStore struct {
	db     *sql.DB
	insert string
}

// OpenSQLite 打开（或创建）数据库并建表。
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(Columns)), ",")
	return &SQLiteStore{
		db:     db,
		insert: fmt.Sprintf("INSERT INTO trades (%s) VALUES (%s)", strings.Join(Columns, ","), placeholders),
	}, nil
}

// Persist 追加一行。
func (s *SQLiteStore) Persist(ctx context.Context, rec order.Record) error {
	vals := row(rec)
	args := make([]interface{}, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	if _, err := s.db.ExecContext(ctx, s.insert, args...); err != nil {
		return fmt.Errorf("insert trade %s: %w", rec.TradeID, err)
	}
	return nil
}

// Query 过滤条件，零值表示不过滤。
type Query struct {
	Status order.RecordStatus
	Asset  string
	Limit  int
}

// Records 按写入顺序返回记录。
func (s *SQLiteStore) Records(ctx context.Context, q Query) ([]order.Record, error) {
	var (
		where []string
		args  []interface{}
	)
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.Asset != "" {
		where = append(where, "asset = ?")
		args = append(args, q.Asset)
	}
	stmt := "SELECT " + strings.Join(Columns, ",") + " FROM trades"
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY id ASC"
	if q.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []order.Record
	for rows.Next() {
		vals := make([]string, len(Columns))
		ptrs := make([]interface{}, len(Columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec, err := fromRow(vals)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count 行数
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trades").Scan(&n)
	return n, err
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
