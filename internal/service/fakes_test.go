package service

import (
	"context"
	"errors"
	"querybot-go/internal/index"
	"querybot-go/internal/model"
	"querybot-go/internal/repository"
	"querybot-go/internal/session"
	"querybot-go/pkg/database"
	"querybot-go/pkg/kafka"
	"querybot-go/pkg/llm"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeLLM 按提示词内容返回预设回复，并记录所有调用。
type fakeLLM struct {
	mu       sync.Mutex
	complete func(prompt string) (string, error)
	chat     func(msgs []llm.Message) (string, error)
	prompts  []string
	messages [][]llm.Message
}

func (f *fakeLLM) Complete(_ context.Context, prompt string, _ float64) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.complete(prompt)
}

func (f *fakeLLM) Chat(_ context.Context, msgs []llm.Message, _ *llm.GenerationParams) (string, error) {
	f.mu.Lock()
	f.messages = append(f.messages, msgs)
	f.mu.Unlock()
	return f.chat(msgs)
}

// scriptedLLM 对分类提示返回 kind，对 SQL 提示返回 sqlOut，对问答返回 answer。
func scriptedLLM(kind, sqlOut, answer string) *fakeLLM {
	return &fakeLLM{
		complete: func(prompt string) (string, error) {
			if strings.Contains(prompt, "Reply with exactly one word") {
				return kind, nil
			}
			return sqlOut, nil
		},
		chat: func([]llm.Message) (string, error) { return answer, nil },
	}
}

func unavailable() error {
	return &model.ModelUnavailableError{Err: errors.New("dial tcp 127.0.0.1:11434: connection refused")}
}

// wordEmbedder 以固定词表的词频作为向量。
type wordEmbedder struct{ vocab []string }

func (w wordEmbedder) vector(text string) []float32 {
	v := make([]float32, len(w.vocab))
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		for i, x := range w.vocab {
			if strings.Trim(tok, "?.,") == x {
				v[i]++
			}
		}
	}
	return v
}

func (w wordEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	return w.vector(text), nil
}

func (w wordEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = w.vector(t)
	}
	return out, nil
}

type staticSchemaRepo struct{ snap model.SchemaSnapshot }

func (r staticSchemaRepo) Introspect(context.Context, *gorm.DB) (model.SchemaSnapshot, error) {
	return r.snap, nil
}

var hrSchema = model.SchemaSnapshot{
	Tables: []string{"employees"},
	DDL:    "CREATE TABLE `employees` (`id` int, `name` varchar(100), `salary` int)",
}

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	m := session.NewManager(staticSchemaRepo{snap: hrSchema}, repository.NewMemoryConversationRepository(50),
		func(string) index.VectorIndex {
			return index.NewMemoryIndex(wordEmbedder{vocab: []string{"leave", "days", "remote", "work", "salary"}})
		}, 4)
	return m.Create("alice", "employee")
}

func connectMock(t *testing.T, sess *session.Session) sqlmock.Sqlmock {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	db, err := database.FromConn(conn)
	require.NoError(t, err)
	sess.Attach(db, database.ConnectParams{Host: "127.0.0.1", Port: 3306, Database: "hrms"})
	return mock
}

type recordingAudit struct {
	mu     sync.Mutex
	events []kafka.AuditEvent
}

func (r *recordingAudit) PublishAudit(_ context.Context, e kafka.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAudit) Close() error { return nil }

func testPolicy() *model.RolePolicy {
	return model.NewRolePolicy(map[string][]string{
		"employee": {"salary", "bank_account"},
		"hr":       {},
	})
}
