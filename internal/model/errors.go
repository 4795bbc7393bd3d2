package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected 表示会话尚未连接数据库。
	ErrNotConnected = errors.New("no active database session")
	// ErrNoCorpus 表示会话尚未索引任何文档。
	ErrNoCorpus = errors.New("no documents have been indexed")
	// ErrEmptyDocument 表示所有提取器都没有得到文本。
	ErrEmptyDocument = errors.New("no text could be extracted from the document")
	// ErrNoContent 表示切块后没有可用的内容。
	ErrNoContent = errors.New("document produced no usable chunks")
	// ErrRebuildInProgress 表示同一索引已有重建在进行。
	ErrRebuildInProgress = errors.New("index rebuild already in progress")
)

// ConnectionError 表示数据库连接失败或已断开，需要用户重新连接。
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// MetadataError 表示结构内省语句执行失败。
type MetadataError struct {
	Statement string
	Err       error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("schema introspection failed on %q: %v", e.Statement, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// ValidationError 表示生成的 SQL 被校验规则拒绝，从未执行。
type ValidationError struct {
	Rule   string
	Reason string
}

func (e *ValidationError) Error() string {
	return "query rejected: " + e.Reason
}

// ExecutionError 包装驱动返回的错误，Error() 原样返回驱动信息。
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string { return e.Err.Error() }

func (e *ExecutionError) Unwrap() error { return e.Err }

// ClassificationError 表示分类模型调用失败或输出无法解析。
type ClassificationError struct {
	Output string
	Err    error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return "classification failed: " + e.Err.Error()
	}
	return fmt.Sprintf("classification failed: unparseable output %q", e.Output)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// IngestionError 表示单个文档入库失败，不影响同批其他文档。
type IngestionError struct {
	SourceID string
	Stage    string
	Err      error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s: %s: %v", e.SourceID, e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// ModelUnavailableError 表示语言模型后端不可达或返回了错误。
type ModelUnavailableError struct {
	Err error
}

func (e *ModelUnavailableError) Error() string {
	return "language model unavailable: " + e.Err.Error()
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }
