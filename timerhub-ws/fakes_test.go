package timerhubws

import (
	"context"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"

	"github.com/timerhub/timerhub/timerhub-ws/connectiondao"
	"github.com/timerhub/timerhub/timerhub-ws/timerdao"
)

func timerRecord(timerID, owner string) timerdao.Timer {
	return timerdao.Timer{
		ID:          timerID,
		OwnerUserID: owner,
		Name:        "pomodoro",
		TotalMs:     1500000,
		RemainingMs: 1500000,
	}
}

type fakeTimers struct {
	mu     sync.Mutex
	timers map[string]timerdao.Timer
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{timers: map[string]timerdao.Timer{}}
}

func (f *fakeTimers) Get(_ context.Context, timerID string) (*timerdao.Timer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	timer, ok := f.timers[timerID]
	if !ok {
		return nil, nil
	}
	return &timer, nil
}

func (f *fakeTimers) Put(_ context.Context, timer timerdao.Timer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timers[timer.ID] = timer
	return nil
}

func (f *fakeTimers) Delete(_ context.Context, timerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.timers, timerID)
	return nil
}

type fakeShares struct {
	mu    sync.Mutex
	edges map[string][]string // timerID -> shared-with users
}

func newFakeShares() *fakeShares {
	return &fakeShares{edges: map[string][]string{}}
}

func (f *fakeShares) ListUsers(_ context.Context, timerID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.edges[timerID]...), nil
}

func (f *fakeShares) Add(_ context.Context, timerID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.edges[timerID] {
		if existing == userID {
			return nil
		}
	}
	f.edges[timerID] = append(f.edges[timerID], userID)
	return nil
}

func (f *fakeShares) Remove(_ context.Context, timerID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := f.edges[timerID]
	for i, existing := range users {
		if existing == userID {
			f.edges[timerID] = append(users[:i], users[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeShares) DeleteByTimer(_ context.Context, timerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.edges, timerID)
	return nil
}

type fakeDirectory struct {
	mu      sync.Mutex
	handles map[string]connectiondao.Handle
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{handles: map[string]connectiondao.Handle{}}
}

func (f *fakeDirectory) Register(_ context.Context, userID, deviceID, connID, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handles[connID] = connectiondao.Handle{
		ConnectionID: connID,
		UserID:       userID,
		DeviceID:     deviceID,
		Endpoint:     endpoint,
	}
	return nil
}

func (f *fakeDirectory) Unregister(_ context.Context, connID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handles, connID)
	return nil
}

func (f *fakeDirectory) ListHandlesForUser(_ context.Context, userID string) ([]connectiondao.HandleRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var refs []connectiondao.HandleRef
	for _, handle := range f.handles {
		if handle.UserID != userID {
			continue
		}
		refs = append(refs, connectiondao.HandleRef{
			DeviceID:     handle.DeviceID,
			ConnectionID: handle.ConnectionID,
			Endpoint:     handle.Endpoint,
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ConnectionID < refs[j].ConnectionID })
	return refs, nil
}

func (f *fakeDirectory) ResolveOwner(_ context.Context, connID string) (*connectiondao.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	handle, ok := f.handles[connID]
	if !ok {
		return nil, nil
	}
	return &handle, nil
}

type fakeManagementAPI struct {
	apigatewaymanagementapiiface.ApiGatewayManagementApiAPI

	mu     sync.Mutex
	posted map[string][][]byte
	gone   map[string]bool
}

func newFakeManagementAPI() *fakeManagementAPI {
	return &fakeManagementAPI{
		posted: map[string][][]byte{},
		gone:   map[string]bool{},
	}
}

func (f *fakeManagementAPI) PostToConnectionWithContext(_ aws.Context, input *apigatewaymanagementapi.PostToConnectionInput, _ ...request.Option) (*apigatewaymanagementapi.PostToConnectionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	connID := aws.StringValue(input.ConnectionId)
	if f.gone[connID] {
		return nil, awserr.New("GoneException", "connection is gone", nil)
	}
	f.posted[connID] = append(f.posted[connID], input.Data)
	return &apigatewaymanagementapi.PostToConnectionOutput{}, nil
}

func (f *fakeManagementAPI) sent(connID string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.posted[connID]...)
}

func (f *fakeManagementAPI) markGone(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gone[connID] = true
}
