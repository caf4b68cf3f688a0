package chat

import (
	"context"
	"sync"

	"github.com/samueelperez/tricyclecrm-sub003/internal/models"
	"github.com/samueelperez/tricyclecrm-sub003/internal/router"
	"github.com/samueelperez/tricyclecrm-sub003/internal/storage"
	"github.com/sashabaranov/go-openai"
)

// recordingStore wraps MemoryStorage, records calls and can fail any method by name.
type recordingStore struct {
	*storage.MemoryStorage

	mu    sync.Mutex
	calls []string
	fail  map[string]error
	panic map[string]bool
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		MemoryStorage: storage.NewMemoryStorage(),
		fail:          map[string]error{},
		panic:         map[string]bool{},
	}
}

func (s *recordingStore) hit(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
	if s.panic[name] {
		panic(name + " exploded")
	}
	return s.fail[name]
}

func (s *recordingStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *recordingStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if err := s.hit("CreateConversation"); err != nil {
		return err
	}
	return s.MemoryStorage.CreateConversation(ctx, conv)
}

func (s *recordingStore) GetConversation(ctx context.Context, id, userID string) (*models.Conversation, error) {
	if err := s.hit("GetConversation"); err != nil {
		return nil, err
	}
	return s.MemoryStorage.GetConversation(ctx, id, userID)
}

func (s *recordingStore) TouchConversation(ctx context.Context, id, userID, threadID string) error {
	if err := s.hit("TouchConversation"); err != nil {
		return err
	}
	return s.MemoryStorage.TouchConversation(ctx, id, userID, threadID)
}

func (s *recordingStore) DeleteConversation(ctx context.Context, id, userID string) error {
	if err := s.hit("DeleteConversation"); err != nil {
		return err
	}
	return s.MemoryStorage.DeleteConversation(ctx, id, userID)
}

func (s *recordingStore) ListConversationIDs(ctx context.Context, userID string) ([]string, error) {
	if err := s.hit("ListConversationIDs"); err != nil {
		return nil, err
	}
	return s.MemoryStorage.ListConversationIDs(ctx, userID)
}

func (s *recordingStore) DeleteConversations(ctx context.Context, userID string, ids []string) (int64, error) {
	if err := s.hit("DeleteConversations"); err != nil {
		return 0, err
	}
	return s.MemoryStorage.DeleteConversations(ctx, userID, ids)
}

func (s *recordingStore) AddMessage(ctx context.Context, msg *models.Message) error {
	if err := s.hit("AddMessage"); err != nil {
		return err
	}
	return s.MemoryStorage.AddMessage(ctx, msg)
}

func (s *recordingStore) DeleteMessages(ctx context.Context, ids []string) (int64, error) {
	if err := s.hit("DeleteMessages"); err != nil {
		return 0, err
	}
	return s.MemoryStorage.DeleteMessages(ctx, ids)
}

func (s *recordingStore) RecordInteraction(ctx context.Context, i *models.Interaction) error {
	if err := s.hit("RecordInteraction"); err != nil {
		return err
	}
	return s.MemoryStorage.RecordInteraction(ctx, i)
}

type fakeFallback struct {
	modes []models.Mode
}

func (f *fakeFallback) Respond(ctx context.Context, mode models.Mode, message string) string {
	f.modes = append(f.modes, mode)
	return "Respuesta de " + string(mode)
}

// countingRouter wraps a router and counts Route calls.
type countingRouter struct {
	inner Router
	calls int
}

func (r *countingRouter) Route(ctx context.Context, mode models.Mode, message, threadID string) router.Reply {
	r.calls++
	return r.inner.Route(ctx, mode, message, threadID)
}

func (r *countingRouter) EffectiveMode(mode models.Mode) models.Mode {
	return r.inner.EffectiveMode(mode)
}

// stuckAssistantAPI never lets a run finish.
type stuckAssistantAPI struct {
	polls int
}

func (a *stuckAssistantAPI) CreateThread(ctx context.Context, req openai.ThreadRequest) (openai.Thread, error) {
	return openai.Thread{ID: "thread_stuck"}, nil
}

func (a *stuckAssistantAPI) CreateMessage(ctx context.Context, threadID string, req openai.MessageRequest) (openai.Message, error) {
	return openai.Message{ID: "msg"}, nil
}

func (a *stuckAssistantAPI) CreateRun(ctx context.Context, threadID string, req openai.RunRequest) (openai.Run, error) {
	return openai.Run{ID: "run", Status: openai.RunStatusQueued}, nil
}

func (a *stuckAssistantAPI) RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	a.polls++
	return openai.Run{ID: runID, Status: openai.RunStatusInProgress}, nil
}

func (a *stuckAssistantAPI) ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error) {
	return openai.MessagesList{}, nil
}
