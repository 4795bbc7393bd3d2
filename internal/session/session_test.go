package session

import (
	"context"
	"errors"
	"querybot-go/internal/index"
	"querybot-go/internal/model"
	"querybot-go/internal/repository"
	"querybot-go/pkg/database"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// countingSchemaRepo 记录内省次数，可选地阻塞到 release 关闭。
type countingSchemaRepo struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
	err     error
}

func (r *countingSchemaRepo) Introspect(ctx context.Context, _ *gorm.DB) (model.SchemaSnapshot, error) {
	if r.calls.Add(1) == 1 && r.entered != nil {
		close(r.entered)
	}
	if r.release != nil {
		<-r.release
	}
	if err := ctx.Err(); err != nil {
		return model.SchemaSnapshot{}, err
	}
	if r.err != nil {
		return model.SchemaSnapshot{}, r.err
	}
	return model.SchemaSnapshot{Tables: []string{"employees"}, DDL: "CREATE TABLE employees (id int)"}, nil
}

func newTestManager(repo repository.SchemaRepository) *Manager {
	return NewManager(repo, repository.NewMemoryConversationRepository(50), nil, 4)
}

func attachMock(t *testing.T, s *Session) sqlmock.Sqlmock {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	db, err := database.FromConn(conn)
	require.NoError(t, err)
	s.Attach(db, database.ConnectParams{Host: "db", Port: 3306, User: "u", Password: "secret", Database: "hrms"})
	return mock
}

func TestSchemaCacheRequiresConnection(t *testing.T) {
	s := newTestManager(&countingSchemaRepo{}).Create("alice", "hr")
	_, err := s.Schema.Get(context.Background())
	assert.ErrorIs(t, err, model.ErrNotConnected)
}

func TestSchemaCacheIntrospectsOncePerConnection(t *testing.T) {
	ctx := context.Background()
	repo := &countingSchemaRepo{}
	s := newTestManager(repo).Create("alice", "hr")
	mock := attachMock(t, s)

	snap, err := s.Schema.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hrms", snap.Database)
	_, err = s.Schema.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.calls.Load())

	s.Schema.Invalidate()
	_, err = s.Schema.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.calls.Load())

	mock.ExpectClose()
	require.NoError(t, s.Disconnect())
	assert.False(t, s.Schema.Cached())
	_, err = s.Schema.Get(ctx)
	assert.ErrorIs(t, err, model.ErrNotConnected)
}

func TestSchemaCacheCollapsesConcurrentMisses(t *testing.T) {
	repo := &countingSchemaRepo{entered: make(chan struct{}), release: make(chan struct{})}
	s := newTestManager(repo).Create("alice", "hr")
	attachMock(t, s)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Schema.Get(context.Background())
			errs <- err
		}()
	}
	<-repo.entered
	time.Sleep(20 * time.Millisecond)
	close(repo.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), repo.calls.Load())
}

func TestSchemaCacheCancelledCallerDoesNotFailOthers(t *testing.T) {
	repo := &countingSchemaRepo{entered: make(chan struct{}), release: make(chan struct{})}
	s := newTestManager(repo).Create("alice", "hr")
	attachMock(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := s.Schema.Get(ctx)
		first <- err
	}()
	<-repo.entered

	second := make(chan error, 1)
	go func() {
		_, err := s.Schema.Get(context.Background())
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(repo.release)
	require.NoError(t, <-second)
	assert.True(t, s.Schema.Cached())
	assert.Equal(t, int32(1), repo.calls.Load())
}

func TestSchemaCacheReturnsMetadataError(t *testing.T) {
	metaErr := &model.MetadataError{Statement: "SHOW TABLES", Err: errors.New("denied")}
	s := newTestManager(&countingSchemaRepo{err: metaErr}).Create("alice", "hr")
	attachMock(t, s)

	_, err := s.Schema.Get(context.Background())
	var target *model.MetadataError
	assert.True(t, errors.As(err, &target))
	assert.False(t, s.Schema.Cached())
}

func TestAttachDropsPassword(t *testing.T) {
	s := newTestManager(&countingSchemaRepo{}).Create("alice", "hr")
	attachMock(t, s)
	p, ok := s.ConnectionInfo()
	require.True(t, ok)
	assert.Empty(t, p.Password)
	assert.Equal(t, "hrms", p.Database)
}

func TestLastResultKeepsLatestSuccess(t *testing.T) {
	s := newTestManager(&countingSchemaRepo{}).Create("alice", "hr")
	ok := &model.QueryAttempt{Validation: model.ValidationResult{Allowed: true}, Result: &model.QueryResult{Columns: []string{"n"}, Rows: [][]any{{1}}}}
	s.SetLastAttempt(ok)
	s.SetLastAttempt(&model.QueryAttempt{Validation: model.ValidationResult{Allowed: false, Reason: "only SELECT allowed"}})

	assert.Same(t, ok.Result, s.LastResult())
	assert.False(t, s.LastAttempt().Succeeded())
}

func TestConversationWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestManager(&countingSchemaRepo{}).Create("alice", "hr")
	for _, c := range []string{"q1", "a1", "q2", "a2", "q3", "a3"} {
		require.NoError(t, s.Conversation.Append(ctx, model.NewTurn(model.TurnUser, c)))
	}

	window, err := s.Conversation.Window(ctx)
	require.NoError(t, err)
	require.Len(t, window, 4)
	assert.Equal(t, "q2", window[0].Content)

	all, err := s.Conversation.Turns(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

type stubIndex struct {
	index.VectorIndex
	sources []string
}

func (s *stubIndex) Len() int          { return len(s.sources) }
func (s *stubIndex) Sources() []string { return s.sources }
func (s *stubIndex) Clear(context.Context) error {
	s.sources = nil
	return nil
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewManager(&countingSchemaRepo{}, repository.NewMemoryConversationRepository(50),
		func(string) index.VectorIndex { return &stubIndex{sources: []string{"a.pdf"}} }, 4)

	a := m.Create("alice", "hr")
	b := m.Create("bob", "employee")
	assert.NotEqual(t, a.ID, b.ID)

	got, ok := m.Get(a.ID)
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.True(t, a.HasCorpus())

	infos := m.List()
	require.Len(t, infos, 2)
	for _, info := range infos {
		assert.Equal(t, []string{"a.pdf"}, info.Sources)
		assert.Equal(t, 1, info.ChunkCount)
		assert.False(t, info.Connected)
	}

	require.NoError(t, m.Close(ctx, a.ID))
	_, ok = m.Get(a.ID)
	assert.False(t, ok)
	assert.False(t, a.HasCorpus())
	assert.NoError(t, m.Close(ctx, "missing"))
}
