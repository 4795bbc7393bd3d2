package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardRejectsEmpty(t *testing.T) {
	g := NewQueryGuard(testPolicy())
	res := g.Validate("  \n\t", "hr")
	assert.False(t, res.Allowed)
	assert.Equal(t, RuleEmpty, res.Rule)
}

func TestGuardRejectsForbiddenKeywordsAnywhere(t *testing.T) {
	g := NewQueryGuard(testPolicy())
	for _, sql := range []string{
		"DROP TABLE employees",
		"select 1; drop table employees;",
		"SELECT * FROM t WHERE note = 'truncate'",
		"select name from employees where x in (select 1) ; Grant all on *.* to bob",
		"SELECT revoke_flag FROM t",
		"shutdown",
		"DELETE FROM employees",
		"SELECT 1 INTO OUTFILE '/tmp/x'",
		"update employees set salary = 0",
		"SELECT * FROM t; CREATE TABLE x (id int)",
	} {
		res := g.Validate(sql, "hr")
		assert.False(t, res.Allowed, sql)
		assert.Equal(t, RuleForbiddenKeyword, res.Rule, sql)
	}
}

func TestGuardAllowsKeywordsInsideIdentifiers(t *testing.T) {
	g := NewQueryGuard(testPolicy())
	res := g.Validate("SELECT created_at, update_time, deleted FROM employees", "hr")
	assert.True(t, res.Allowed, res.Reason)
}

func TestGuardOnlySelect(t *testing.T) {
	g := NewQueryGuard(testPolicy())
	for _, sql := range []string{"SHOW TABLES", "  describe employees", "WITH x AS (SELECT 1) SELECT * FROM x", "explain select 1"} {
		res := g.Validate(sql, "hr")
		assert.False(t, res.Allowed, sql)
		assert.Equal(t, "only SELECT allowed", res.Reason, sql)
	}
	assert.True(t, g.Validate("  select count(*) from employees;", "hr").Allowed)
}

func TestGuardRejectsStackedStatements(t *testing.T) {
	g := NewQueryGuard(testPolicy())
	res := g.Validate("SELECT 1; SELECT 2;", "hr")
	assert.False(t, res.Allowed)
	assert.Equal(t, RuleStacked, res.Rule)

	assert.True(t, g.Validate("SELECT 1;;  ", "hr").Allowed)
	assert.True(t, g.Validate("SELECT name FROM employees WHERE note = 'a; b'", "hr").Allowed)

	// 注释中的引号不能吞掉后面的第二条语句
	res = g.Validate("SELECT name /* ' */; SELECT salary FROM employees", "hr")
	assert.False(t, res.Allowed)
	assert.Equal(t, RuleStacked, res.Rule)
}

func TestGuardCommentsDoNotHideOrInventColumns(t *testing.T) {
	g := NewQueryGuard(testPolicy())
	assert.True(t, g.Validate("SELECT name /* salary */ FROM employees", "employee").Allowed)
	assert.True(t, g.Validate("SELECT name -- salary\nFROM employees", "employee").Allowed)
	// a--b 在 MySQL 中是减法，不是注释
	res := g.Validate("SELECT id--1, salary FROM employees", "employee")
	assert.False(t, res.Allowed)
	assert.Equal(t, RuleRestrictedColumn, res.Rule)
}

func TestGuardRejectsUnterminatedInput(t *testing.T) {
	g := NewQueryGuard(testPolicy())
	for _, sql := range []string{
		"SELECT name, 'salary FROM employees",
		"SELECT `name, salary FROM employees",
		"SELECT name /* , salary FROM employees",
		"SELECT name /*! , salary FROM employees",
	} {
		res := g.Validate(sql, "employee")
		assert.False(t, res.Allowed, sql)
		assert.Equal(t, RuleMalformed, res.Rule, sql)
	}
}

func TestGuardRejectsUnknownRole(t *testing.T) {
	g := NewQueryGuard(testPolicy())
	res := g.Validate("SELECT name, salary, bank_account FROM employees", "contractor")
	require.False(t, res.Allowed)
	assert.Equal(t, RuleUnknownRole, res.Rule)
	assert.Contains(t, res.Reason, "contractor")

	_, res = g.Approve("SELECT 1", "")
	assert.Equal(t, RuleUnknownRole, res.Rule)
}

func TestGuardRestrictedColumns(t *testing.T) {
	g := NewQueryGuard(testPolicy())

	res := g.Validate("SELECT name, salary FROM employees", "employee")
	require.False(t, res.Allowed)
	assert.Equal(t, RuleRestrictedColumn, res.Rule)
	assert.Contains(t, res.Reason, "salary")
	assert.Contains(t, res.Reason, "employee")

	assert.True(t, g.Validate("SELECT name FROM employees", "employee").Allowed)
	// 不受限的角色可以查询
	assert.True(t, g.Validate("SELECT name, salary FROM employees", "hr").Allowed)
	// 受限列只出现在过滤条件中时放行
	assert.True(t, g.Validate("SELECT name FROM employees WHERE salary > 1000", "employee").Allowed)
}

func TestGuardRestrictedColumnVariants(t *testing.T) {
	g := NewQueryGuard(testPolicy())
	for _, sql := range []string{
		"SELECT e.`Salary` FROM employees e",
		"SELECT AVG(salary) AS avg_pay FROM employees",
		"SELECT name, CASE WHEN salary > 10 THEN 'high' END FROM employees",
		"SELECT x FROM (SELECT salary AS x FROM employees) s",
		"SELECT DISTINCT bank_account FROM employees",
		"SELECT name /* it's */, salary FROM employees",
		"SELECT 1 AS `a'b`, salary FROM employees",
		"SELECT name -- don't\n, salary FROM employees",
		"SELECT name # '\n, salary FROM employees",
		"SELECT 1 AS `x)`, salary FROM employees",
		"SELECT 1 AS `a from b`, salary FROM employees",
		"SELECT name /*!50000 , salary */ FROM employees",
	} {
		res := g.Validate(sql, "EMPLOYEE")
		assert.False(t, res.Allowed, sql)
		assert.Equal(t, RuleRestrictedColumn, res.Rule, sql)
	}
}

func TestGuardSelectStarForRestrictedRole(t *testing.T) {
	g := NewQueryGuard(testPolicy())
	for _, sql := range []string{"SELECT * FROM employees", "SELECT e.* FROM employees e", "SELECT DISTINCT * FROM employees"} {
		res := g.Validate(sql, "employee")
		assert.False(t, res.Allowed, sql)
		assert.Contains(t, res.Reason, "bank_account", sql)
	}
	assert.True(t, g.Validate("SELECT * FROM employees", "hr").Allowed)
	assert.True(t, g.Validate("SELECT COUNT(*) FROM employees", "employee").Allowed)
}

func TestGuardAliasNamedLikeRestrictedColumn(t *testing.T) {
	g := NewQueryGuard(testPolicy())
	assert.True(t, g.Validate("SELECT name AS salary FROM employees", "employee").Allowed)
}

func TestApproveOnlyForAllowed(t *testing.T) {
	g := NewQueryGuard(testPolicy())

	q, res := g.Approve("  SELECT name FROM employees;  ", "employee")
	require.True(t, res.Allowed)
	assert.Equal(t, "SELECT name FROM employees;", q.SQL())

	q, res = g.Approve("DELETE FROM employees", "employee")
	assert.False(t, res.Allowed)
	assert.Empty(t, q.SQL())
}

func TestNormalizeSQL(t *testing.T) {
	norm := func(sql string) string {
		out, ok := normalizeSQL(sql)
		require.True(t, ok, sql)
		return out
	}
	assert.Equal(t, "SELECT '' , \"\"", norm(`SELECT 'it''s; x' , "a\"b"`))
	assert.False(t, strings.Contains(norm("WHERE a = 'salary'"), "salary"))
	assert.Equal(t, "SELECT `a_b`, `x_y`", norm("SELECT `a'b`, `x``y`"))
	assert.Equal(t, "SELECT a  , b", norm("SELECT a /* it's */, b"))
	assert.Equal(t, "SELECT a  \n, b", norm("SELECT a # it's\n, b"))
}
