package service

import (
	"context"
	"errors"
	"fmt"
	"querybot-go/internal/model"
	"querybot-go/internal/session"
	"querybot-go/pkg/kafka"
	"querybot-go/pkg/log"
	"querybot-go/pkg/metrics"
	"strings"
	"time"
)

// 面向用户的固定提示。
const (
	ConnectFirstText = "Please connect to the database first."
	UploadFirstText  = "Please upload a document first."
)

// RouterState 是一次问答经过的状态。
type RouterState string

const (
	StateIdle         RouterState = "idle"
	StateClassifying  RouterState = "classifying"
	StateExecutingSQL RouterState = "executing_sql"
	StateRetrieving   RouterState = "retrieving"
	StateResponded    RouterState = "responded"
)

// Response 是一次问答的结果。Text 为展示给用户的内容，Trace 为经过的状态。
type Response struct {
	Text       string                  `json:"text"`
	Kind       string                  `json:"kind"`
	FellBack   bool                    `json:"fellBack"`
	SQL        string                  `json:"sql,omitempty"`
	Validation *model.ValidationResult `json:"validation,omitempty"`
	RowCount   int                     `json:"rowCount"`
	Sources    []model.SourceRef       `json:"sources,omitempty"`
	Trace      []RouterState           `json:"trace"`
	Duration   time.Duration           `json:"duration"`
}

func (r *Response) enter(s RouterState) {
	r.Trace = append(r.Trace, s)
}

// HybridRouter 编排分类、SQL 与检索两条路径，并维护会话对话记录。
type HybridRouter struct {
	classifier *QueryClassifier
	translator *SQLTranslator
	guard      *QueryGuard
	executor   *QueryExecutor
	formatter  *ResultFormatter
	retriever  *RetrievalAnswerer
	audit      kafka.AuditPublisher
}

// NewHybridRouter 创建路由器。audit 为 nil 时不发布审计事件。
func NewHybridRouter(
	classifier *QueryClassifier,
	translator *SQLTranslator,
	guard *QueryGuard,
	executor *QueryExecutor,
	formatter *ResultFormatter,
	retriever *RetrievalAnswerer,
	audit kafka.AuditPublisher,
) *HybridRouter {
	return &HybridRouter{
		classifier: classifier,
		translator: translator,
		guard:      guard,
		executor:   executor,
		formatter:  formatter,
		retriever:  retriever,
		audit:      audit,
	}
}

// Ask 回答一个问题。
//
// 未连接数据库或没有文档时返回提示文本与 model.ErrNotConnected / model.ErrNoCorpus，不记录对话。
// 校验失败转为说明文本，不返回错误；执行、连接与模型错误在返回提示文本的同时返回结构化错误。
// 进入 Responded 时追加一条用户消息，模型可用时再追加一条助手消息。
func (h *HybridRouter) Ask(ctx context.Context, sess *session.Session, question string) (*Response, error) {
	start := time.Now()
	resp := &Response{}
	resp.enter(StateIdle)
	resp.enter(StateClassifying)

	verdict := h.classifier.Classify(ctx, question)
	resp.Kind = verdict.Kind.String()
	resp.FellBack = verdict.FellBack
	log.Infof("[HybridRouter] 会话 %s 问题分类为 %s (fallback=%v)", sess.ID, verdict.Kind, verdict.FellBack)

	var err error
	switch verdict.Kind {
	case model.KindStructured:
		err = h.askDatabase(ctx, sess, question, resp)
	default:
		err = h.askDocuments(ctx, sess, question, resp)
	}
	resp.enter(StateIdle)
	resp.Duration = time.Since(start)
	return resp, err
}

// abort 返回 Idle 而不进入 Responded，不记录对话。
func abort(resp *Response, path, text string, err error) error {
	resp.Text = text
	metrics.ObserveRouterResponse(path, outcome(err))
	return err
}

func (h *HybridRouter) askDatabase(ctx context.Context, sess *session.Session, question string, resp *Response) error {
	if !sess.IsConnected() {
		return abort(resp, "sql", ConnectFirstText, model.ErrNotConnected)
	}
	resp.enter(StateExecutingSQL)

	schema, err := sess.Schema.Get(ctx)
	if errors.Is(err, model.ErrNotConnected) {
		return abort(resp, "sql", ConnectFirstText, err)
	}
	if err != nil {
		h.respond(ctx, sess, resp, "sql", question, "", err)
		resp.Text = "Failed to read the database schema: " + err.Error()
		return err
	}

	history, err := sess.Conversation.Window(ctx)
	if err != nil {
		log.Warnf("[HybridRouter] 读取对话记录失败: %v", err)
	}
	raw, err := h.translator.Translate(ctx, question, schema, history)
	if err != nil {
		h.respond(ctx, sess, resp, "sql", question, "", err)
		resp.Text = modelUnavailableText(err)
		return err
	}

	sql := ExtractSQL(raw)
	resp.SQL = sql
	attempt := &model.QueryAttempt{Question: question, GeneratedSQL: sql, CreatedAt: time.Now()}

	approved, validation := h.guard.Approve(sql, sess.Role)
	attempt.Validation = validation
	resp.Validation = &validation
	metrics.ObserveGuardDecision(ruleLabel(validation))

	var (
		body    string
		execErr error
	)
	if !validation.Allowed {
		log.Warnf("[HybridRouter] 会话 %s 的 SQL 被拒绝: %s", sess.ID, validation.Reason)
		attempt.Err = &model.ValidationError{Rule: validation.Rule, Reason: validation.Reason}
		body = "Query rejected: " + validation.Reason
	} else {
		result, elapsed, err := h.executor.Execute(ctx, sess, approved)
		attempt.Duration = elapsed
		if err != nil {
			attempt.Err = err
			execErr = err
			body = "Error executing query: " + err.Error()
		} else {
			attempt.Result = result
			resp.RowCount = result.Len()
			body = h.formatter.Preview(result)
		}
	}
	sess.SetLastAttempt(attempt)
	h.publishAudit(ctx, sess, attempt)

	resp.Text = fmt.Sprintf("```sql\n%s\n```\n\n%s", sql, body)
	h.respond(ctx, sess, resp, "sql", question, resp.Text, execErr)
	return execErr
}

func (h *HybridRouter) askDocuments(ctx context.Context, sess *session.Session, question string, resp *Response) error {
	if !sess.HasCorpus() {
		return abort(resp, "retrieval", UploadFirstText, model.ErrNoCorpus)
	}
	resp.enter(StateRetrieving)

	answer, err := h.retriever.Answer(ctx, sess, question)
	if errors.Is(err, model.ErrNoCorpus) {
		return abort(resp, "retrieval", UploadFirstText, err)
	}
	if err != nil {
		h.respond(ctx, sess, resp, "retrieval", question, "", err)
		resp.Text = modelUnavailableText(err)
		return err
	}

	resp.Text = answer.Text
	resp.Sources = answer.Sources
	h.respond(ctx, sess, resp, "retrieval", question, answer.Text, nil)
	return nil
}

// respond 进入 Responded：记录用户消息，assistant 非空时再记录助手消息。
func (h *HybridRouter) respond(ctx context.Context, sess *session.Session, resp *Response, path, question, assistant string, err error) {
	resp.enter(StateResponded)
	turns := []model.ConversationTurn{model.NewTurn(model.TurnUser, question)}
	if assistant != "" {
		turns = append(turns, model.NewTurn(model.TurnAssistant, assistant))
	}
	if appendErr := sess.Conversation.Append(ctx, turns...); appendErr != nil {
		log.Errorf("[HybridRouter] 保存会话 %s 的对话记录失败: %v", sess.ID, appendErr)
	}
	metrics.ObserveRouterResponse(path, outcome(err))
}

func (h *HybridRouter) publishAudit(ctx context.Context, sess *session.Session, a *model.QueryAttempt) {
	if h.audit == nil {
		return
	}
	event := kafka.AuditEvent{
		SessionID:  sess.ID,
		Username:   sess.Username,
		Role:       string(sess.Role),
		Question:   a.Question,
		SQL:        a.GeneratedSQL,
		Allowed:    a.Validation.Allowed,
		Rule:       a.Validation.Rule,
		Reason:     a.Validation.Reason,
		RowCount:   a.Result.Len(),
		DurationMs: a.Duration.Milliseconds(),
		Timestamp:  a.CreatedAt,
	}
	if a.Err != nil {
		event.Error = a.Err.Error()
	}
	if err := h.audit.PublishAudit(ctx, event); err != nil {
		log.Warnf("[HybridRouter] 发布审计事件失败: %v", err)
	}
}

func ruleLabel(v model.ValidationResult) string {
	if v.Allowed {
		return "allowed"
	}
	return v.Rule
}

func outcome(err error) string {
	var (
		modelErr *model.ModelUnavailableError
		execErr  *model.ExecutionError
		metaErr  *model.MetadataError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, model.ErrNoCorpus):
		return "no_corpus"
	case errors.As(err, &modelErr):
		return "model_unavailable"
	case errors.As(err, &execErr):
		return "execution_error"
	case errors.As(err, &metaErr):
		return "metadata_error"
	}
	return "error"
}

func modelUnavailableText(err error) string {
	var modelErr *model.ModelUnavailableError
	if errors.As(err, &modelErr) {
		return "The language model is unavailable right now. Please try again later."
	}
	return "Something went wrong: " + strings.TrimSpace(err.Error())
}
