package repository

import (
	"context"
	"database/sql"
	"fmt"
	"querybot-go/internal/model"
	"strings"
	"time"

	"gorm.io/gorm"
)

// SchemaRepository 对已连接的 MySQL 数据库做结构内省。
type SchemaRepository interface {
	Introspect(ctx context.Context, db *gorm.DB) (model.SchemaSnapshot, error)
}

type mysqlSchemaRepository struct{}

// NewSchemaRepository 创建一个新的 SchemaRepository 实例。
func NewSchemaRepository() SchemaRepository {
	return &mysqlSchemaRepository{}
}

const foreignKeyQuery = `SELECT COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND REFERENCED_TABLE_NAME IS NOT NULL
ORDER BY ORDINAL_POSITION`

// Introspect 依次执行 SHOW TABLES、SHOW CREATE TABLE、DESCRIBE、SHOW INDEX 与外键查询。
// 任一语句失败都返回 *model.MetadataError。
func (r *mysqlSchemaRepository) Introspect(ctx context.Context, db *gorm.DB) (model.SchemaSnapshot, error) {
	tableRows, err := queryStringMaps(ctx, db, "SHOW TABLES")
	if err != nil {
		return model.SchemaSnapshot{}, err
	}

	var (
		tables   []string
		ddl      []string
		metadata []string
	)
	for _, row := range tableRows {
		tables = append(tables, row.first())
	}

	for _, table := range tables {
		quoted := quoteIdent(table)

		created, err := queryStringMaps(ctx, db, "SHOW CREATE TABLE "+quoted)
		if err != nil {
			return model.SchemaSnapshot{}, err
		}
		if len(created) > 0 {
			stmt := created[0].get("Create Table")
			if stmt == "" {
				stmt = created[0].get("Create View")
			}
			ddl = append(ddl, stmt)
		}

		columns, err := queryStringMaps(ctx, db, "DESCRIBE "+quoted)
		if err != nil {
			return model.SchemaSnapshot{}, err
		}
		indexes, err := queryStringMaps(ctx, db, "SHOW INDEX FROM "+quoted)
		if err != nil {
			return model.SchemaSnapshot{}, err
		}
		fks, err := queryStringMaps(ctx, db, foreignKeyQuery, table)
		if err != nil {
			return model.SchemaSnapshot{}, err
		}

		metadata = append(metadata, describeTable(table, columns, indexes, fks))
	}

	return model.SchemaSnapshot{
		Tables:    tables,
		DDL:       strings.Join(ddl, "\n\n"),
		Metadata:  strings.Join(metadata, "\n"),
		FetchedAt: time.Now(),
	}, nil
}

// describeTable 生成单表的列、索引与外键摘要。
func describeTable(table string, columns, indexes, fks []stringRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== TABLE: %s ===\n", table)
	b.WriteString("COLUMNS:\n")
	for _, col := range columns {
		line := fmt.Sprintf("  %s: %s", col.get("Field"), col.get("Type"))
		switch col.get("Key") {
		case "PRI":
			line += " PK"
		case "UNI":
			line += " UNIQUE"
		case "MUL":
			line += " INDEX"
		}
		if col.get("Null") == "NO" {
			line += " NOT NULL"
		}
		b.WriteString(line + "\n")
	}

	var idxLines []string
	for _, idx := range indexes {
		if idx.get("Key_name") == "PRIMARY" {
			continue
		}
		uniqueness := "NON-UNIQUE"
		if idx.get("Non_unique") == "0" {
			uniqueness = "UNIQUE"
		}
		idxLines = append(idxLines, fmt.Sprintf("  %s: %s (%s)", idx.get("Key_name"), idx.get("Column_name"), uniqueness))
	}
	if len(idxLines) > 0 {
		b.WriteString("INDEXES:\n")
		b.WriteString(strings.Join(idxLines, "\n") + "\n")
	}

	if len(fks) > 0 {
		b.WriteString("RELATIONSHIPS:\n")
		for _, fk := range fks {
			fmt.Fprintf(&b, "  %s -> %s.%s\n", fk.get("COLUMN_NAME"), fk.get("REFERENCED_TABLE_NAME"), fk.get("REFERENCED_COLUMN_NAME"))
		}
	}
	return b.String()
}

// stringRow 保存一行结果，列顺序与查询一致。
type stringRow struct {
	columns []string
	values  []string
}

func (r stringRow) get(col string) string {
	for i, c := range r.columns {
		if strings.EqualFold(c, col) {
			return r.values[i]
		}
	}
	return ""
}

func (r stringRow) first() string {
	if len(r.values) == 0 {
		return ""
	}
	return r.values[0]
}

// queryStringMaps 执行内省语句并把所有列读为字符串，NULL 读为空串。
func queryStringMaps(ctx context.Context, db *gorm.DB, statement string, args ...interface{}) ([]stringRow, error) {
	rows, err := db.WithContext(ctx).Raw(statement, args...).Rows()
	if err != nil {
		return nil, &model.MetadataError{Statement: statement, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &model.MetadataError{Statement: statement, Err: err}
	}

	var out []stringRow
	for rows.Next() {
		raw := make([]sql.NullString, len(cols))
		dest := make([]interface{}, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, &model.MetadataError{Statement: statement, Err: err}
		}
		values := make([]string, len(cols))
		for i, v := range raw {
			values[i] = v.String
		}
		out = append(out, stringRow{columns: cols, values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, &model.MetadataError{Statement: statement, Err: err}
	}
	return out, nil
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
