package chat

import (
	"context"
	"testing"

	"github.com/samueelperez/tricyclecrm-sub003/internal/models"
	"github.com/samueelperez/tricyclecrm-sub003/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedConversation(t *testing.T, store *recordingStore, id, owner string, messages int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.MemoryStorage.CreateConversation(ctx, &models.Conversation{
		ID: id, Title: "t", Mode: models.ModeAnalysis, UserID: owner,
	}))
	for i := 0; i < messages; i++ {
		require.NoError(t, store.MemoryStorage.AddMessage(ctx, &models.Message{
			ID: id + "-m" + string(rune('a'+i)), ConversationID: id, Role: models.RoleUser, Content: "x",
		}))
	}
}

func newAdminManager(store *recordingStore) *Manager {
	return newManager(store, newRouter(config.OpenAIConfig{}, nil, &fakeFallback{}))
}

func TestDeleteConversation_MessagesFirst(t *testing.T) {
	store := newRecordingStore()
	seedConversation(t, store, "conv-1", userID, 3)
	m := newAdminManager(store)

	require.NoError(t, m.DeleteConversation(context.Background(), userID, "conv-1"))

	assert.Equal(t, []string{"GetConversation", "DeleteMessages", "DeleteConversation"}, store.Calls())
	assert.Empty(t, messageRoles(t, store, "conv-1"))
	_, err := store.MemoryStorage.GetConversation(context.Background(), "conv-1", userID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteConversation_ForeignOwnerLeavesDataIntact(t *testing.T) {
	store := newRecordingStore()
	seedConversation(t, store, "conv-1", "someone-else", 2)
	m := newAdminManager(store)

	err := m.DeleteConversation(context.Background(), userID, "conv-1")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"GetConversation"}, store.Calls())
	assert.Len(t, messageRoles(t, store, "conv-1"), 2)
	_, err = store.MemoryStorage.GetConversation(context.Background(), "conv-1", "someone-else")
	assert.NoError(t, err)
}

func TestDeleteConversation_RequiresID(t *testing.T) {
	m := newAdminManager(newRecordingStore())
	assert.ErrorIs(t, m.DeleteConversation(context.Background(), userID, ""), ErrInvalidRequest)
	assert.ErrorIs(t, m.DeleteConversation(context.Background(), "", "conv-1"), ErrUnauthenticated)
}

func TestDeleteAllConversations_NoneOwned(t *testing.T) {
	store := newRecordingStore()
	seedConversation(t, store, "conv-other", "someone-else", 1)
	m := newAdminManager(store)

	n, err := m.DeleteAllConversations(context.Background(), userID)

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{"ListConversationIDs"}, store.Calls())
}

func TestDeleteAllConversations(t *testing.T) {
	store := newRecordingStore()
	seedConversation(t, store, "conv-1", userID, 2)
	seedConversation(t, store, "conv-2", userID, 1)
	seedConversation(t, store, "conv-other", "someone-else", 1)
	m := newAdminManager(store)

	n, err := m.DeleteAllConversations(context.Background(), userID)

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []string{"ListConversationIDs", "DeleteMessages", "DeleteConversations"}, store.Calls())
	assert.Empty(t, messageRoles(t, store, "conv-1"))
	assert.Len(t, messageRoles(t, store, "conv-other"), 1)
}

func TestCreateConversation(t *testing.T) {
	m := newAdminManager(newRecordingStore())
	ctx := context.Background()

	conv, err := m.CreateConversation(ctx, userID, "  Seguimiento Acme ", models.ModeAnalysis, "thread_9")
	require.NoError(t, err)
	assert.Equal(t, "Seguimiento Acme", conv.Title)
	assert.Equal(t, "thread_9", conv.ThreadID)
	assert.Equal(t, userID, conv.UserID)
	assert.NotEmpty(t, conv.ID)

	_, err = m.CreateConversation(ctx, userID, "", models.ModeAnalysis, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = m.CreateConversation(ctx, userID, "t", "ventas", "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestUpdateConversation(t *testing.T) {
	store := newRecordingStore()
	seedConversation(t, store, "conv-1", userID, 0)
	m := newAdminManager(store)
	ctx := context.Background()

	title := "Nuevo"
	mode := models.ModeProspecting
	thread := "thread_2"
	conv, err := m.UpdateConversation(ctx, userID, "conv-1", models.ConversationPatch{Title: &title, Mode: &mode, ThreadID: &thread})
	require.NoError(t, err)
	assert.Equal(t, "Nuevo", conv.Title)
	assert.Equal(t, models.ModeProspecting, conv.Mode)
	assert.Equal(t, "thread_2", conv.ThreadID)

	_, err = m.UpdateConversation(ctx, "someone-else", "conv-1", models.ConversationPatch{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)

	bad := models.Mode("ventas")
	_, err = m.UpdateConversation(ctx, userID, "conv-1", models.ConversationPatch{Mode: &bad})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	blank := "  "
	_, err = m.UpdateConversation(ctx, userID, "conv-1", models.ConversationPatch{Title: &blank})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestListMessages_RequiresOwnership(t *testing.T) {
	store := newRecordingStore()
	seedConversation(t, store, "conv-1", userID, 2)
	m := newAdminManager(store)

	msgs, err := m.ListMessages(context.Background(), userID, "conv-1")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	_, err = m.ListMessages(context.Background(), "someone-else", "conv-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
