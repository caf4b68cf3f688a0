package assistant

import (
	"context"
	"fmt"

	"github.com/samueelperez/tricyclecrm-sub003/pkg/config"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// API is the subset of *openai.Client used by the thread protocol.
type API interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
}

// Outcome classifies how a turn on the assistant protocol ended.
type Outcome int

const (
	// OutcomeOK means a reply was extracted.
	OutcomeOK Outcome = iota
	// OutcomeDegraded means the protocol worked but the run failed or timed out.
	OutcomeDegraded
	// OutcomeFatal means a call to the assistant service was rejected.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeFatal:
		return "fatal"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result is what one call to Respond produced. ThreadID is set as soon as a
// thread was resolved, even when a later step failed.
type Result struct {
	Outcome  Outcome
	Reply    string
	ThreadID string
	Err      error
}

func (r Result) OK() bool { return r.Outcome == OutcomeOK }

type Client struct {
	api         API
	assistantID string
	policy      PollPolicy
	logger      *zap.Logger
}

func NewClient(api API, assistantID string, policy PollPolicy, logger *zap.Logger) *Client {
	return &Client{
		api:         api,
		assistantID: assistantID,
		policy:      policy.normalized(),
		logger:      logger.Named("assistant"),
	}
}

// NewOpenAIClient builds the go-openai client for both protocols. The library
// sends the bearer credential and the assistants version header itself.
func NewOpenAIClient(cfg config.OpenAIConfig) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

// Respond runs one assistant turn. An empty threadID creates a new thread.
func (c *Client) Respond(ctx context.Context, threadID, message string) Result {
	log := c.logger.With(zap.String("thread_id", threadID))

	if threadID == "" {
		thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
		if err != nil {
			log.Error("Failed to create thread", zap.Error(err))
			return Result{Outcome: OutcomeFatal, Err: fmt.Errorf("create thread: %w", err)}
		}
		threadID = thread.ID
		log = c.logger.With(zap.String("thread_id", threadID))
		log.Debug("Created thread")
	}

	if _, err := c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    string(openai.ThreadMessageRoleUser),
		Content: message,
	}); err != nil {
		log.Error("Failed to append message", zap.Error(err))
		return Result{Outcome: OutcomeFatal, ThreadID: threadID, Err: fmt.Errorf("create message: %w", err)}
	}

	run, err := c.api.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: c.assistantID})
	if err != nil {
		log.Error("Failed to start run", zap.Error(err))
		return Result{Outcome: OutcomeFatal, ThreadID: threadID, Err: fmt.Errorf("create run: %w", err)}
	}
	log = log.With(zap.String("run_id", run.ID))

	poll := c.waitForRun(ctx, threadID, run)
	switch poll.state {
	case runCompleted:
		log.Debug("Run completed", zap.Int("attempts", poll.attempts))
	case runErrored:
		log.Error("Failed to poll run", zap.Error(poll.err), zap.Int("attempts", poll.attempts))
		return Result{Outcome: OutcomeFatal, ThreadID: threadID, Err: poll.err}
	default:
		log.Warn("Run did not complete",
			zap.String("status", string(poll.run.Status)),
			zap.Int("attempts", poll.attempts),
			zap.Error(poll.err))
		return Result{Outcome: OutcomeDegraded, ThreadID: threadID, Err: poll.err}
	}

	reply, err := c.latestReply(ctx, threadID)
	if err != nil {
		log.Error("Failed to list thread messages", zap.Error(err))
		return Result{Outcome: OutcomeFatal, ThreadID: threadID, Err: fmt.Errorf("list messages: %w", err)}
	}
	return Result{Outcome: OutcomeOK, Reply: reply, ThreadID: threadID}
}
