package service

import (
	"context"
	"database/sql"
	"errors"
	"querybot-go/internal/model"
	"querybot-go/internal/session"
	"querybot-go/pkg/log"
	"querybot-go/pkg/metrics"
	"time"

	"gorm.io/gorm"
)

// QueryExecutor 在会话连接上执行已通过校验的 SQL，不重试。
type QueryExecutor struct {
	timeout time.Duration
}

// NewQueryExecutor 创建执行器，timeout<=0 时不额外限制单条语句时长。
func NewQueryExecutor(timeout time.Duration) *QueryExecutor {
	return &QueryExecutor{timeout: timeout}
}

// Execute 执行语句并返回结果与耗时。未连接时返回 model.ErrNotConnected，
// 驱动错误包装为 *model.ExecutionError，其 Error() 即驱动原始信息。
func (e *QueryExecutor) Execute(ctx context.Context, sess *session.Session, q ApprovedQuery) (*model.QueryResult, time.Duration, error) {
	if q.sql == "" {
		return nil, 0, &model.ValidationError{Rule: RuleEmpty, Reason: "empty query"}
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var (
		result  *model.QueryResult
		elapsed time.Duration
	)
	err := sess.WithConn(ctx, func(db *gorm.DB) error {
		start := time.Now()
		var err error
		result, err = runQuery(ctx, db, q.sql)
		elapsed = time.Since(start)
		return err
	})
	if errors.Is(err, model.ErrNotConnected) {
		return nil, 0, err
	}
	metrics.ObserveQuery(elapsed, err)
	if err != nil {
		log.Warnf("[QueryExecutor] 会话 %s 执行失败: %v", sess.ID, err)
		return nil, elapsed, &model.ExecutionError{SQL: q.sql, Err: err}
	}
	log.Infof("[QueryExecutor] 会话 %s 执行成功, 行数: %d, 耗时: %v", sess.ID, result.Len(), elapsed)
	return result, elapsed, nil
}

func runQuery(ctx context.Context, db *gorm.DB, statement string) (*model.QueryResult, error) {
	rows, err := db.WithContext(ctx).Raw(statement).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// scanRows 按投影顺序读取所有行，[]byte 转为字符串。
func scanRows(rows *sql.Rows) (*model.QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := &model.QueryResult{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
