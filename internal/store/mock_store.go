package store

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetTeamByID(ctx context.Context, id string) (*Team, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Team), args.Error(1)
}

func (m *MockStore) UpdateTeam(ctx context.Context, id string, t Team) (*Team, error) {
	args := m.Called(ctx, id, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Team), args.Error(1)
}

func (m *MockStore) GetSongsForTeam(ctx context.Context, teamID string) ([]Song, error) {
	args := m.Called(ctx, teamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Song), args.Error(1)
}

func (m *MockStore) CreateTeam(ctx context.Context, name, createdBy string) (*Team, error) {
	args := m.Called(ctx, name, createdBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Team), args.Error(1)
}

func (m *MockStore) AddSong(ctx context.Context, teamID string, in NewSong) (*Song, error) {
	args := m.Called(ctx, teamID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Song), args.Error(1)
}

func (m *MockStore) DeleteSong(ctx context.Context, teamID, songID string) (*Song, error) {
	args := m.Called(ctx, teamID, songID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Song), args.Error(1)
}

func (m *MockStore) MoveSong(ctx context.Context, teamID, songID string, newIndex int) (*MoveResult, error) {
	args := m.Called(ctx, teamID, songID, newIndex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MoveResult), args.Error(1)
}

func (m *MockStore) ListPlayingTeams(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
