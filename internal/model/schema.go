package model

import "time"

// SchemaSnapshot 是已连接数据库结构的只读快照。
// DDL 为所有表的 CREATE TABLE 语句，Metadata 为列、索引与外键的摘要文本。
type SchemaSnapshot struct {
	Database  string    `json:"database"`
	Tables    []string  `json:"tables"`
	DDL       string    `json:"ddl"`
	Metadata  string    `json:"metadata"`
	FetchedAt time.Time `json:"fetchedAt"`
}
