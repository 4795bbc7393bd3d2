// Package app 负责把配置装配成可运行的服务对象，供 HTTP 服务与命令行共用。
package app

import (
	"context"
	"fmt"
	"querybot-go/internal/config"
	"querybot-go/internal/index"
	"querybot-go/internal/model"
	"querybot-go/internal/pipeline"
	"querybot-go/internal/repository"
	"querybot-go/internal/service"
	"querybot-go/internal/session"
	"querybot-go/pkg/database"
	"querybot-go/pkg/embedding"
	"querybot-go/pkg/es"
	"querybot-go/pkg/kafka"
	"querybot-go/pkg/llm"
	"querybot-go/pkg/log"
	"querybot-go/pkg/ocr"
	"querybot-go/pkg/storage"
	"querybot-go/pkg/tika"
	"querybot-go/pkg/token"

	"github.com/go-redis/redis/v8"
)

// App 持有装配完成的全部组件。
type App struct {
	Config    config.Config
	Sessions  *session.Manager
	Auth      *service.AuthService
	Router    *service.HybridRouter
	Retriever *service.RetrievalAnswerer
	Corpus    *service.CorpusService
	Guard     *service.QueryGuard
	Ingestor  *pipeline.Ingestor

	redis *redis.Client
	audit kafka.AuditPublisher
}

// RolePolicy 把 roles 配置转换为列限制策略。
func RolePolicy(roles map[string]config.RoleConfig) *model.RolePolicy {
	restricted := make(map[string][]string, len(roles))
	for role, rc := range roles {
		restricted[role] = rc.RestrictedColumns
	}
	return model.NewRolePolicy(restricted)
}

// NewIngestor 按配置组合 OCR、结构化提取与 Tika 兜底。
func NewIngestor(cfg config.Config) *pipeline.Ingestor {
	var normalizer ocr.Normalizer
	if cfg.OCR.Enabled {
		normalizer = ocr.NewNormalizer(cfg.OCR)
	}
	var fallback pipeline.PageExtractor
	if cfg.Tika.ServerURL != "" {
		fallback = pipeline.TikaExtractor{Client: tika.NewClient(cfg.Tika)}
	}
	return pipeline.NewIngestor(normalizer, pipeline.StructuredExtractor{}, fallback, cfg.Retrieval)
}

// Build 依次初始化存储、外部客户端与业务服务。可选组件未启用时使用进程内实现。
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg}

	// 步骤1: 对话记录存储
	var conversations repository.ConversationRepository
	if cfg.Redis.Addr != "" {
		rdb, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.redis = rdb
		conversations = repository.NewConversationRepository(rdb, cfg.Conversation.MaxTurns, cfg.Redis.TTL)
		log.Infof("[App] 步骤1: 对话记录使用 Redis %s", cfg.Redis.Addr)
	} else {
		conversations = repository.NewMemoryConversationRepository(cfg.Conversation.MaxTurns)
		log.Info("[App] 步骤1: 未配置 Redis，对话记录保存在内存中")
	}

	// 步骤2: 模型客户端
	llmClient := llm.NewClient(cfg.LLM)
	embedder := embedding.NewClient(cfg.Embedding)

	// 步骤3: 向量索引
	newIndex := func(string) index.VectorIndex { return index.NewMemoryIndex(embedder) }
	if cfg.Elasticsearch.Enabled {
		esClient, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("初始化 Elasticsearch 客户端失败: %w", err)
		}
		newIndex = func(sessionID string) index.VectorIndex {
			return index.NewElasticIndex(esClient, embedder, cfg.Elasticsearch.IndexPrefix, sessionID)
		}
		log.Infof("[App] 步骤3: 向量索引使用 Elasticsearch (%s)", cfg.Elasticsearch.Addresses)
	} else {
		log.Info("[App] 步骤3: 向量索引使用内存实现")
	}

	// 步骤4: 文档归档与审计
	var store storage.ObjectStore
	if cfg.MinIO.Enabled {
		s, err := storage.NewMinIOStore(ctx, cfg.MinIO)
		if err != nil {
			a.Close()
			return nil, err
		}
		store = s
	}
	a.audit = kafka.NewAuditPublisher(cfg.Kafka)

	// 步骤5: 业务服务
	a.Sessions = session.NewManager(repository.NewSchemaRepository(), conversations, newIndex, cfg.Conversation.Window)
	a.Ingestor = NewIngestor(cfg)
	a.Corpus = service.NewCorpusService(a.Ingestor, store)
	policy := RolePolicy(cfg.Roles)
	a.Auth = service.NewAuthService(
		repository.NewUserRepository(cfg.Auth.Users),
		token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours),
		a.Sessions,
		a.Corpus,
		policy,
	)
	a.Guard = service.NewQueryGuard(policy)
	a.Retriever = service.NewRetrievalAnswerer(llmClient, index.SearchParams{
		K:      cfg.Retrieval.K,
		FetchK: cfg.Retrieval.FetchK,
		Lambda: cfg.Retrieval.Lambda,
	}, cfg.Retrieval.Temperature)
	a.Router = service.NewHybridRouter(
		service.NewQueryClassifier(llmClient, cfg.Classifier),
		service.NewSQLTranslator(llmClient, 0),
		a.Guard,
		service.NewQueryExecutor(cfg.Database.QueryTimeout),
		service.NewResultFormatter(cfg.Formatter.PreviewLimit),
		a.Retriever,
		a.audit,
	)
	log.Info("[App] 步骤5: 业务服务装配完成")
	return a, nil
}

// Close 关闭全部会话与外部连接。
func (a *App) Close() {
	if a.Sessions != nil {
		a.Sessions.CloseAll(context.Background())
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			log.Warnf("[App] 关闭 Kafka 生产者失败: %v", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warnf("[App] 关闭 Redis 连接失败: %v", err)
		}
	}
}
