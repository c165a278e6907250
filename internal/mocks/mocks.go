package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

type ClientRepositoryMock struct {
	mock.Mock
}

func (m *ClientRepositoryMock) Put(ctx context.Context, client models.Client) error {
	args := m.Called(ctx, client)
	return args.Error(0)
}

func (m *ClientRepositoryMock) Get(ctx context.Context, connectionID string) (models.Client, error) {
	args := m.Called(ctx, connectionID)
	var client models.Client
	if val := args.Get(0); val != nil {
		client = val.(models.Client)
	}
	return client, args.Error(1)
}

func (m *ClientRepositoryMock) GetByNickname(ctx context.Context, nickname string) (models.Client, error) {
	args := m.Called(ctx, nickname)
	var client models.Client
	if val := args.Get(0); val != nil {
		client = val.(models.Client)
	}
	return client, args.Error(1)
}

func (m *ClientRepositoryMock) Delete(ctx context.Context, connectionID string) error {
	args := m.Called(ctx, connectionID)
	return args.Error(0)
}

func (m *ClientRepositoryMock) All(ctx context.Context) ([]models.Client, error) {
	args := m.Called(ctx)
	var clients []models.Client
	if val := args.Get(0); val != nil {
		clients = val.([]models.Client)
	}
	return clients, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, msg models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepositoryMock) Conversation(ctx context.Context, key string, limit int, cursor string) ([]models.Message, string, error) {
	args := m.Called(ctx, key, limit, cursor)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.String(1), args.Error(2)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Send(ctx context.Context, connectionID string, data []byte) error {
	args := m.Called(ctx, connectionID, data)
	return args.Error(0)
}

var _ repositories.ClientRepository = (*ClientRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
