package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"querybot-go/internal/config"
	"querybot-go/internal/model"
	"querybot-go/internal/pipeline"
	"querybot-go/internal/service"
	"querybot-go/pkg/hash"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunGuard(t *testing.T) {
	guard := service.NewQueryGuard(model.NewRolePolicy(map[string][]string{"employee": {"salary"}}))

	var out bytes.Buffer
	require.NoError(t, runGuard(&out, guard, "employee", "SELECT name FROM employees"))
	assert.Equal(t, "allowed\n", out.String())

	out.Reset()
	err := runGuard(&out, guard, "employee", "SELECT name, salary FROM employees")
	assert.ErrorIs(t, err, errRejected)
	assert.Contains(t, out.String(), "rejected [restricted_column]")

	out.Reset()
	err = runGuard(&out, guard, "hr", "DROP TABLE employees")
	assert.ErrorIs(t, err, errRejected)
	assert.Contains(t, out.String(), "rejected [forbidden_keyword]")
}

func TestRunIngestPrintsStages(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "policy.txt")
	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(good, []byte("Employees get twenty leave days per year."), 0o644))
	require.NoError(t, os.WriteFile(empty, []byte("   "), 0o644))

	ingestor := pipeline.NewIngestor(nil, pipeline.StructuredExtractor{}, nil, config.RetrievalConfig{ChunkSize: 100})
	var out bytes.Buffer
	err := runIngest(context.Background(), &out, ingestor, []string{good, empty})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 documents failed")
	assert.Contains(t, out.String(), "policy.txt: ok, 1 pages, 1 chunks")
	assert.Contains(t, out.String(), "empty.txt: failed:")
}

func TestConnParamsFallsBackToConfig(t *testing.T) {
	cmd := &cobra.Command{}
	addConnFlags(cmd)
	require.NoError(t, cmd.Flags().Set("database", "hrms"))
	t.Setenv("QUERYBOT_DB_PASSWORD", "from-env")

	p := connParams(cmd, config.DatabaseConfig{Host: "db.internal", Port: 3307, User: "reader", Name: "other"})
	assert.Equal(t, "db.internal", p.Host)
	assert.Equal(t, 3307, p.Port)
	assert.Equal(t, "reader", p.User)
	assert.Equal(t, "hrms", p.Database)
	assert.Equal(t, "from-env", p.Password)
}

func TestPrintSchema(t *testing.T) {
	var out bytes.Buffer
	printSchema(&out, model.SchemaSnapshot{DDL: "CREATE TABLE t (id int)", Metadata: "=== TABLE: t ===\n"}, true)
	assert.Equal(t, "=== TABLE: t ===\n", out.String())
}

func TestHashPasswordCommand(t *testing.T) {
	var out bytes.Buffer
	hashPasswordCmd.SetOut(&out)
	require.NoError(t, hashPasswordCmd.RunE(hashPasswordCmd, []string{"s3cret"}))
	assert.True(t, hash.CheckPasswordHash("s3cret", strings.TrimSpace(out.String())))
}
