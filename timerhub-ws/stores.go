package timerhubws

import (
	"context"

	"github.com/timerhub/timerhub/timerhub-ws/connectiondao"
	"github.com/timerhub/timerhub/timerhub-ws/sharedao"
	"github.com/timerhub/timerhub/timerhub-ws/timerdao"
)

// TimerStore is the persistence contract the router needs for timers.
type TimerStore interface {
	Get(ctx context.Context, timerID string) (*timerdao.Timer, error)
	Put(ctx context.Context, timer timerdao.Timer) error
	Delete(ctx context.Context, timerID string) error
}

// ShareStore is the persistence contract for sharing relationships.
type ShareStore interface {
	ListUsers(ctx context.Context, timerID string) ([]string, error)
	Add(ctx context.Context, timerID, userID string) error
	Remove(ctx context.Context, timerID, userID string) error
	DeleteByTimer(ctx context.Context, timerID string) error
}

// ConnectionDirectory tracks which connection handles belong to which
// (user, device) and owns their lifetime.
type ConnectionDirectory interface {
	Register(ctx context.Context, userID, deviceID, connID, endpoint string) error
	Unregister(ctx context.Context, connID string) error
	ListHandlesForUser(ctx context.Context, userID string) ([]connectiondao.HandleRef, error)
	ResolveOwner(ctx context.Context, connID string) (*connectiondao.Handle, error)
}

var (
	_ TimerStore          = (*timerdao.DAO)(nil)
	_ ShareStore          = (*sharedao.DAO)(nil)
	_ ConnectionDirectory = (*connectiondao.DAO)(nil)
)
