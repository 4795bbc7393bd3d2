package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"querybot-go/internal/app"
	"querybot-go/internal/config"
	"querybot-go/internal/model"
	"querybot-go/internal/pipeline"
	"querybot-go/internal/repository"
	"querybot-go/internal/service"
	"querybot-go/pkg/database"
	"querybot-go/pkg/hash"
	"strings"

	"github.com/spf13/cobra"
)

// --- connection flags shared by schema and ask ---

func addConnFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "", "MySQL host (defaults to database.host)")
	cmd.Flags().Int("port", 0, "MySQL port (defaults to database.port)")
	cmd.Flags().String("user", "", "MySQL user (defaults to database.user)")
	cmd.Flags().String("database", "", "database name (defaults to database.name)")
	cmd.Flags().String("password", "", "MySQL password (or QUERYBOT_DB_PASSWORD)")
}

func connParams(cmd *cobra.Command, defaults config.DatabaseConfig) database.ConnectParams {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	user, _ := cmd.Flags().GetString("user")
	name, _ := cmd.Flags().GetString("database")
	password, _ := cmd.Flags().GetString("password")

	p := database.ConnectParams{Host: host, Port: port, User: user, Database: name, Password: password}
	if p.Host == "" {
		p.Host = defaults.Host
	}
	if p.Port == 0 {
		p.Port = defaults.Port
	}
	if p.User == "" {
		p.User = defaults.User
	}
	if p.Database == "" {
		p.Database = defaults.Name
	}
	if p.Password == "" {
		p.Password = os.Getenv("QUERYBOT_DB_PASSWORD")
	}
	return p
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the DDL and metadata summary of a database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p := connParams(cmd, cfg.Database)
		db, err := database.OpenMySQL(cmd.Context(), p, cfg.Database.ConnectTimeout)
		if err != nil {
			return err
		}
		defer database.Close(db)

		snap, err := repository.NewSchemaRepository().Introspect(cmd.Context(), db)
		if err != nil {
			return err
		}
		metadataOnly, _ := cmd.Flags().GetBool("metadata")
		printSchema(cmd.OutOrStdout(), snap, metadataOnly)
		return nil
	},
}

func printSchema(out io.Writer, snap model.SchemaSnapshot, metadataOnly bool) {
	if !metadataOnly {
		fmt.Fprintln(out, snap.DDL)
		fmt.Fprintln(out)
	}
	fmt.Fprint(out, snap.Metadata)
}

func init() {
	addConnFlags(schemaCmd)
	schemaCmd.Flags().Bool("metadata", false, "print only the metadata summary")
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask one question against a database",
	Long: `Ask one question against a database and print the answer.

Examples:
  querybotctl ask --database hrms --role hr "How many employees are there?"
  querybotctl ask --database hrms --role employee --csv out.csv "List all departments"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := app.Build(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		role, _ := cmd.Flags().GetString("role")
		sess := a.Sessions.Create("cli", model.Role(strings.ToLower(role)))
		if err := sess.Connect(cmd.Context(), connParams(cmd, cfg.Database), cfg.Database.ConnectTimeout); err != nil {
			return err
		}

		resp, askErr := a.Router.Ask(cmd.Context(), sess, strings.Join(args, " "))
		fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
		if askErr != nil {
			return askErr
		}

		csvPath, _ := cmd.Flags().GetString("csv")
		if csvPath == "" || sess.LastResult() == nil {
			return nil
		}
		data, err := service.ToExport(sess.LastResult())
		if err != nil {
			return err
		}
		return os.WriteFile(csvPath, data, 0o644)
	},
}

func init() {
	addConnFlags(askCmd)
	askCmd.Flags().String("role", "hr", "role used for column restrictions")
	askCmd.Flags().String("csv", "", "write the full result to this CSV file")
}

// --- guard ---

var guardCmd = &cobra.Command{
	Use:   "guard <sql>",
	Short: "Check a statement against the SQL validation rules for a role",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		role, _ := cmd.Flags().GetString("role")
		guard := service.NewQueryGuard(app.RolePolicy(cfg.Roles))
		return runGuard(cmd.OutOrStdout(), guard, model.Role(strings.ToLower(role)), strings.Join(args, " "))
	},
}

// errRejected 让被拒绝的语句以非零状态退出。
var errRejected = errors.New("statement rejected")

func runGuard(out io.Writer, guard *service.QueryGuard, role model.Role, sql string) error {
	v := guard.Validate(sql, role)
	if v.Allowed {
		fmt.Fprintln(out, "allowed")
		return nil
	}
	fmt.Fprintf(out, "rejected [%s]: %s\n", v.Rule, v.Reason)
	return errRejected
}

func init() {
	guardCmd.Flags().String("role", "employee", "role to validate for")
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Run the ingestion pipeline on files and print the stage report",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runIngest(cmd.Context(), cmd.OutOrStdout(), app.NewIngestor(cfg), args)
	},
}

func runIngest(ctx context.Context, out io.Writer, ingestor service.DocumentIngester, paths []string) error {
	failed := 0
	for _, path := range paths {
		name := filepath.Base(path)
		res, err := ingestor.Ingest(ctx, path, name)
		if res != nil {
			fmt.Fprintf(out, "%s: %s, %d pages, %d chunks\n", name, res.Status(), res.Pages, len(res.Chunks))
			printStages(out, res.Stages)
		}
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s: failed: %v\n", name, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(paths))
	}
	return nil
}

func printStages(out io.Writer, stages []pipeline.StageReport) {
	for _, s := range stages {
		line := fmt.Sprintf("  %-8s %s", s.Stage, s.Status)
		if s.Detail != "" {
			line += ": " + s.Detail
		}
		fmt.Fprintln(out, line)
	}
}

// --- hash-password ---

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print a bcrypt hash for auth.users[].password_hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := hash.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), h)
		return nil
	},
}
