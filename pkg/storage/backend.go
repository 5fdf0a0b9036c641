// Package storage 分片持久化层。
//
// 表名由逻辑键（分笔按交易日、K线按周期）确定性推导，首次写入时建表。
// 后端通过能力接口访问，网关和查询只依赖该接口而非具体驱动。
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"stockfetch/pkg/core"
	"stockfetch/pkg/logger"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Backend 存储后端能力接口
type Backend interface {
	// Execute 执行DDL或写语句，返回受影响行数
	Execute(ctx context.Context, query string, args ...any) (int64, error)

	// Query 执行查询语句
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)

	// TableExists 检查表是否存在
	TableExists(ctx context.Context, name string) (bool, error)

	// Close 关闭后端连接
	Close() error
}

// SQLBackend 基于 database/sql 的存储后端
type SQLBackend struct {
	db     *sql.DB
	driver string
	closed bool
	mu     sync.Mutex
	log    *logrus.Entry
}

// NewSQLBackend 创建存储后端
// driver 当前支持 "sqlite"
func NewSQLBackend(driver, dsn string) (*SQLBackend, error) {
	if driver != "sqlite" {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}

	// sqlite 写入串行化，单连接避免锁竞争
	db.SetMaxOpenConns(1)

	return &SQLBackend{
		db:     db,
		driver: driver,
		log:    logger.WithComponent("SQLBackend"),
	}, nil
}

// Execute 执行DDL或写语句
func (b *SQLBackend) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	if b.isClosed() {
		return 0, core.ErrBackendClosed
	}

	result, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected unavailable: %w", err)
	}
	return affected, nil
}

// Query 执行查询语句
func (b *SQLBackend) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if b.isClosed() {
		return nil, core.ErrBackendClosed
	}
	return b.db.QueryContext(ctx, query, args...)
}

// TableExists 检查表是否存在
func (b *SQLBackend) TableExists(ctx context.Context, name string) (bool, error) {
	if b.isClosed() {
		return false, core.ErrBackendClosed
	}

	var found string
	err := b.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close 关闭后端连接，可重复调用
func (b *SQLBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

func (b *SQLBackend) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
