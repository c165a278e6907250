package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dm-service/internal/mocks"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
	"dm-service/internal/ws"
)

func payloadType(data []byte) string {
	var p struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(data, &p)
	return p.Type
}

func isPayload(payloadTypeWanted string) interface{} {
	return mock.MatchedBy(func(data []byte) bool {
		return payloadType(data) == payloadTypeWanted
	})
}

func newTestRouter() (*Router, *mocks.ClientRepositoryMock, *mocks.MessageRepositoryMock, *mocks.NotifierMock) {
	clients := new(mocks.ClientRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	notifier := new(mocks.NotifierMock)
	return NewRouter(clients, messages, notifier, nil), clients, messages, notifier
}

func TestConnectWithoutNicknameForbidden(t *testing.T) {
	router, clients, _, _ := newTestRouter()

	res, err := router.Dispatch(context.Background(), models.Event{
		Action:       models.ActionConnect,
		ConnectionID: "c1",
		QueryParams:  map[string]string{},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	clients.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestConnectNicknameHeldByLiveConnectionForbidden(t *testing.T) {
	router, clients, _, notifier := newTestRouter()

	clients.On("GetByNickname", mock.Anything, "ann").
		Return(models.Client{ConnectionID: "old", Nickname: "ann"}, nil).Once()
	notifier.On("Send", mock.Anything, "old", isPayload("ping")).Return(nil).Once()

	res, err := router.Dispatch(context.Background(), models.Event{
		Action:       models.ActionConnect,
		ConnectionID: "c1",
		QueryParams:  map[string]string{"nickname": "ann"},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	clients.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	notifier.AssertExpectations(t)
}

func TestConnectNicknameHeldByDeadConnectionSucceeds(t *testing.T) {
	router, clients, _, notifier := newTestRouter()

	clients.On("GetByNickname", mock.Anything, "ann").
		Return(models.Client{ConnectionID: "old", Nickname: "ann"}, nil).Once()
	notifier.On("Send", mock.Anything, "old", isPayload("ping")).Return(ws.ErrConnectionGone).Once()
	// The failed probe garbage-collects the stale row.
	clients.On("Delete", mock.Anything, "old").Return(nil).Once()
	clients.On("Put", mock.Anything, models.Client{ConnectionID: "c1", Nickname: "ann"}).Return(nil).Once()
	clients.On("All", mock.Anything).Return([]models.Client{
		{ConnectionID: "c1", Nickname: "ann"},
		{ConnectionID: "c2", Nickname: "bob"},
	}, nil).Once()
	notifier.On("Send", mock.Anything, "c2", isPayload("clients")).Return(nil).Once()

	res, err := router.Dispatch(context.Background(), models.Event{
		Action:       models.ActionConnect,
		ConnectionID: "c1",
		QueryParams:  map[string]string{"nickname": "ann"},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	clients.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestConnectFreshNicknameBroadcastsRoster(t *testing.T) {
	router, clients, _, notifier := newTestRouter()

	clients.On("GetByNickname", mock.Anything, "ann").
		Return(models.Client{}, repositories.ErrClientNotFound).Once()
	clients.On("Put", mock.Anything, models.Client{ConnectionID: "c1", Nickname: "ann"}).Return(nil).Once()
	clients.On("All", mock.Anything).Return([]models.Client{
		{ConnectionID: "c1", Nickname: "ann"},
		{ConnectionID: "c2", Nickname: "bob"},
		{ConnectionID: "c3", Nickname: "carol"},
	}, nil).Once()
	notifier.On("Send", mock.Anything, "c2", isPayload("clients")).Return(nil).Once()
	notifier.On("Send", mock.Anything, "c3", isPayload("clients")).Return(nil).Once()

	res, err := router.Dispatch(context.Background(), models.Event{
		Action:       models.ActionConnect,
		ConnectionID: "c1",
		QueryParams:  map[string]string{"nickname": "ann"},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	clients.AssertExpectations(t)
	notifier.AssertExpectations(t)
	// The connecting client itself is excluded from the broadcast.
	notifier.AssertNotCalled(t, "Send", mock.Anything, "c1", mock.Anything)
}

func TestDisconnectRemovesRowAndBroadcasts(t *testing.T) {
	router, clients, _, notifier := newTestRouter()

	clients.On("Get", mock.Anything, "c1").
		Return(models.Client{ConnectionID: "c1", Nickname: "ann"}, nil).Once()
	clients.On("Delete", mock.Anything, "c1").Return(nil).Once()
	clients.On("All", mock.Anything).Return([]models.Client{
		{ConnectionID: "c2", Nickname: "bob"},
	}, nil).Once()
	notifier.On("Send", mock.Anything, "c2", isPayload("clients")).Return(nil).Once()

	res, err := router.Dispatch(context.Background(), models.Event{
		Action:       models.ActionDisconnect,
		ConnectionID: "c1",
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	clients.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestGetClientsPushesRosterToRequesterOnly(t *testing.T) {
	router, clients, _, notifier := newTestRouter()

	clients.On("All", mock.Anything).Return([]models.Client{
		{ConnectionID: "c1", Nickname: "ann"},
		{ConnectionID: "c2", Nickname: "bob"},
	}, nil).Once()
	notifier.On("Send", mock.Anything, "c1", isPayload("clients")).Return(nil).Once()

	res, err := router.Dispatch(context.Background(), models.Event{
		Action:       models.ActionGetClients,
		ConnectionID: "c1",
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	notifier.AssertExpectations(t)
	notifier.AssertNumberOfCalls(t, "Send", 1)
}

func TestSendMessagePersistsAndDeliversOnline(t *testing.T) {
	router, clients, messages, notifier := newTestRouter()

	clients.On("Get", mock.Anything, "c1").
		Return(models.Client{ConnectionID: "c1", Nickname: "ann"}, nil).Once()
	messages.On("Create", mock.Anything, mock.MatchedBy(func(msg models.Message) bool {
		return msg.ConversationKey == "ann#bob" &&
			msg.Sender == "ann" &&
			msg.Message == "hi" &&
			msg.MessageID != "" &&
			msg.CreatedAt > 0
	})).Return(nil).Once()
	clients.On("GetByNickname", mock.Anything, "bob").
		Return(models.Client{ConnectionID: "c2", Nickname: "bob"}, nil).Once()
	notifier.On("Send", mock.Anything, "c2", mock.MatchedBy(func(data []byte) bool {
		var p models.MessagePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return false
		}
		return p.Type == "message" && p.Value.Sender == "ann" && p.Value.Message == "hi"
	})).Return(nil).Once()

	res, err := router.Dispatch(context.Background(), models.Event{
		Action:       models.ActionSendMessage,
		ConnectionID: "c1",
		Body:         []byte(`{"message":"hi","recipientNickname":"bob"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	clients.AssertExpectations(t)
	messages.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestSendMessageOfflineRecipientStoredOnly(t *testing.T) {
	router, clients, messages, notifier := newTestRouter()

	clients.On("Get", mock.Anything, "c1").
		Return(models.Client{ConnectionID: "c1", Nickname: "ann"}, nil).Once()
	messages.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	clients.On("GetByNickname", mock.Anything, "bob").
		Return(models.Client{}, repositories.ErrClientNotFound).Once()

	res, err := router.Dispatch(context.Background(), models.Event{
		Action:       models.ActionSendMessage,
		ConnectionID: "c1",
		Body:         []byte(`{"message":"hi","recipientNickname":"bob"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	messages.AssertExpectations(t)
	notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageMalformedBodyPushesErrorPayload(t *testing.T) {
	router, _, messages, notifier := newTestRouter()

	notifier.On("Send", mock.Anything, "c1", isPayload("error")).Return(nil).Once()

	res, err := router.Dispatch(context.Background(), models.Event{
		Action:       models.ActionSendMessage,
		ConnectionID: "c1",
		Body:         []byte(`{"message":42,"recipientNickname":"bob"}`),
	})

	// A user error is reported asynchronously; the event itself still succeeds.
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	notifier.AssertExpectations(t)
}

func TestSendMessageUnregisteredSenderPushesErrorPayload(t *testing.T) {
	router, clients, messages, notifier := newTestRouter()

	clients.On("Get", mock.Anything, "c1").
		Return(models.Client{}, repositories.ErrClientNotFound).Once()
	notifier.On("Send", mock.Anything, "c1", isPayload("error")).Return(nil).Once()

	res, err := router.Dispatch(context.Background(), models.Event{
		Action:       models.ActionSendMessage,
		ConnectionID: "c1",
		Body:         []byte(`{"message":"hi","recipientNickname":"bob"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	notifier.AssertExpectations(t)
}

func TestGetMessagesPushesConversationPage(t *testing.T) {
	router, clients, messages, notifier := newTestRouter()

	page := []models.Message{
		{MessageID: "m2", CreatedAt: 200, ConversationKey: "ann#bob", Message: "second", Sender: "bob"},
		{MessageID: "m1", CreatedAt: 100, ConversationKey: "ann#bob", Message: "first", Sender: "ann"},
	}

	clients.On("Get", mock.Anything, "c1").
		Return(models.Client{ConnectionID: "c1", Nickname: "ann"}, nil).Once()
	messages.On("Conversation", mock.Anything, "ann#bob", 25, "cursor-1").
		Return(page, "", nil).Once()
	notifier.On("Send", mock.Anything, "c1", mock.MatchedBy(func(data []byte) bool {
		var p models.MessagesPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return false
		}
		return p.Type == "messages" && len(p.Value.Messages) == 2 && p.Value.Messages[0].MessageID == "m2"
	})).Return(nil).Once()

	res, err := router.Dispatch(context.Background(), models.Event{
		Action:       models.ActionGetMessages,
		ConnectionID: "c1",
		Body:         []byte(`{"targetNickname":"bob","limit":25,"startKey":"cursor-1"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	messages.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestGetMessagesEmptyConversationPushesEmptyList(t *testing.T) {
	router, clients, messages, notifier := newTestRouter()

	clients.On("Get", mock.Anything, "c1").
		Return(models.Client{ConnectionID: "c1", Nickname: "ann"}, nil).Once()
	messages.On("Conversation", mock.Anything, "ann#bob", 10, "").
		Return(([]models.Message)(nil), "", nil).Once()
	notifier.On("Send", mock.Anything, "c1", mock.MatchedBy(func(data []byte) bool {
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return false
		}
		value, ok := decoded["value"].(map[string]any)
		if !ok {
			return false
		}
		list, ok := value["messages"].([]any)
		return ok && len(list) == 0
	})).Return(nil).Once()

	res, err := router.Dispatch(context.Background(), models.Event{
		Action:       models.ActionGetMessages,
		ConnectionID: "c1",
		Body:         []byte(`{"targetNickname":"bob","limit":10}`),
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	notifier.AssertExpectations(t)
}

func TestGetMessagesNonNumericLimitPushesErrorPayload(t *testing.T) {
	router, _, messages, notifier := newTestRouter()

	notifier.On("Send", mock.Anything, "c1", isPayload("error")).Return(nil).Once()

	res, err := router.Dispatch(context.Background(), models.Event{
		Action:       models.ActionGetMessages,
		ConnectionID: "c1",
		Body:         []byte(`{"targetNickname":"bob","limit":"lots"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	messages.AssertNotCalled(t, "Conversation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	notifier.AssertExpectations(t)
}

func TestGetMessagesBadCursorPushesErrorPayload(t *testing.T) {
	router, clients, messages, notifier := newTestRouter()

	clients.On("Get", mock.Anything, "c1").
		Return(models.Client{ConnectionID: "c1", Nickname: "ann"}, nil).Once()
	messages.On("Conversation", mock.Anything, "ann#bob", 10, "garbage").
		Return(([]models.Message)(nil), "", repositories.ErrBadCursor).Once()
	notifier.On("Send", mock.Anything, "c1", isPayload("error")).Return(nil).Once()

	res, err := router.Dispatch(context.Background(), models.Event{
		Action:       models.ActionGetMessages,
		ConnectionID: "c1",
		Body:         []byte(`{"targetNickname":"bob","limit":10,"startKey":"garbage"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	notifier.AssertExpectations(t)
}
