package timerhubws

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

type testEnv struct {
	handler *Handler
	timers  *fakeTimers
	shares  *fakeShares
	dir     *fakeDirectory
	mgmt    *fakeManagementAPI
}

func newTestEnv() *testEnv {
	timers := newFakeTimers()
	shares := newFakeShares()
	dir := newFakeDirectory()
	mgmt := newFakeManagementAPI()

	handler := &Handler{
		Timers:      timers,
		Shares:      shares,
		Connections: dir,
		Broadcast: &Broadcaster{
			Connections: dir,
			Logger:      zerolog.Nop(),
			NewManagementAPI: func(string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
				return mgmt
			},
		},
		Logger: zerolog.Nop(),
	}
	return &testEnv{handler: handler, timers: timers, shares: shares, dir: dir, mgmt: mgmt}
}

func (e *testEnv) connect(t *testing.T, userID, deviceID, connID string) {
	t.Helper()
	assert.NoError(t, e.dir.Register(context.Background(), userID, deviceID, connID, "https://ws.example.com/dev"))
}

func wsRequest(route, connID, userID, body string) events.APIGatewayWebsocketProxyRequest {
	req := events.APIGatewayWebsocketProxyRequest{Body: body}
	req.RequestContext.RouteKey = route
	req.RequestContext.ConnectionID = connID
	req.RequestContext.DomainName = "ws.example.com"
	req.RequestContext.Stage = "dev"
	if userID != "" {
		req.RequestContext.Authorizer = map[string]interface{}{"userId": userID}
	}
	return req
}

func messageRequest(connID, userID, data string) events.APIGatewayWebsocketProxyRequest {
	return wsRequest("$default", connID, userID, fmt.Sprintf(`{"data":%v}`, data))
}

func TestHandleConnect(t *testing.T) {
	t.Run("registers the connection", func(t *testing.T) {
		env := newTestEnv()
		req := wsRequest("$connect", "c1", "alice", "")
		req.QueryStringParameters = map[string]string{"deviceId": "phone"}

		resp, err := env.handler.HandleEvent(context.Background(), req)
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		handle, err := env.dir.ResolveOwner(context.Background(), "c1")
		assert.NoError(t, err)
		assert.NotNil(t, handle)
		assert.Equal(t, "alice", handle.UserID)
		assert.Equal(t, "phone", handle.DeviceID)
	})

	t.Run("missing identity still returns 200 and is not tracked", func(t *testing.T) {
		env := newTestEnv()
		resp, err := env.handler.HandleEvent(context.Background(), wsRequest("$connect", "c1", "", ""))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		handle, err := env.dir.ResolveOwner(context.Background(), "c1")
		assert.NoError(t, err)
		assert.Nil(t, handle)
	})
}

func TestHandleDisconnect(t *testing.T) {
	t.Run("unregisters the connection", func(t *testing.T) {
		env := newTestEnv()
		env.connect(t, "alice", "phone", "c1")

		resp, err := env.handler.HandleEvent(context.Background(), wsRequest("$disconnect", "c1", "", ""))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		handle, err := env.dir.ResolveOwner(context.Background(), "c1")
		assert.NoError(t, err)
		assert.Nil(t, handle)
	})

	t.Run("unknown connection is a no-op", func(t *testing.T) {
		env := newTestEnv()
		resp, err := env.handler.HandleEvent(context.Background(), wsRequest("$disconnect", "never-seen", "", ""))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})
}

func TestHandlePing(t *testing.T) {
	env := newTestEnv()
	env.connect(t, "alice", "phone", "c1")

	resp, err := env.handler.HandleEvent(context.Background(), messageRequest("c1", "alice", `{"type":"ping"}`))
	assert.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	sent := env.mgmt.sent("c1")
	assert.Len(t, sent, 1)
	var msg map[string]string
	assert.NoError(t, json.Unmarshal(sent[0], &msg))
	assert.Equal(t, MsgPong, msg["type"])
}

func TestHandleUpdateTimer(t *testing.T) {
	t.Run("creates and fans out to every device of the owner", func(t *testing.T) {
		env := newTestEnv()
		env.connect(t, "alice", "phone", "c1a")
		env.connect(t, "alice", "laptop", "c1b")

		resp, err := env.handler.HandleEvent(context.Background(), messageRequest("c1a", "alice",
			`{"type":"updateTimer","timer":{"id":"t1","name":"pomodoro","totalDuration":1500000,"remainingDuration":1500000}}`))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		timer, err := env.timers.Get(context.Background(), "t1")
		assert.NoError(t, err)
		assert.NotNil(t, timer)
		assert.Equal(t, "alice", timer.OwnerUserID)
		assert.Equal(t, "pomodoro", timer.Name)

		// the sender's device gets the echo too
		assert.Len(t, env.mgmt.sent("c1a"), 1)
		assert.Len(t, env.mgmt.sent("c1b"), 1)
	})

	t.Run("shareWith grants access and notifies the new member", func(t *testing.T) {
		env := newTestEnv()
		env.connect(t, "alice", "phone", "c1")
		env.connect(t, "bob", "phone", "c2")

		_, err := env.handler.HandleEvent(context.Background(), messageRequest("c1", "alice",
			`{"type":"updateTimer","timer":{"id":"t1","name":"standup"},"shareWith":["bob"]}`))
		assert.NoError(t, err)

		shared, err := env.shares.ListUsers(context.Background(), "t1")
		assert.NoError(t, err)
		assert.Equal(t, []string{"bob"}, shared)
		assert.Len(t, env.mgmt.sent("c2"), 1)
	})

	t.Run("removed member gets one final update", func(t *testing.T) {
		env := newTestEnv()
		env.connect(t, "alice", "phone", "c1")
		env.connect(t, "bob", "phone", "c2")
		assert.NoError(t, env.shares.Add(context.Background(), "t1", "bob"))
		assert.NoError(t, env.timers.Put(context.Background(), timerRecord("t1", "alice")))

		_, err := env.handler.HandleEvent(context.Background(), messageRequest("c1", "alice",
			`{"type":"updateTimer","timer":{"id":"t1"},"shareWith":[]}`))
		assert.NoError(t, err)

		shared, err := env.shares.ListUsers(context.Background(), "t1")
		assert.NoError(t, err)
		assert.Empty(t, shared)
		assert.Len(t, env.mgmt.sent("c2"), 1)
	})

	t.Run("omitted shareWith leaves sharing untouched and notifies members", func(t *testing.T) {
		env := newTestEnv()
		env.connect(t, "alice", "phone", "c1")
		env.connect(t, "bob", "phone", "c2")
		assert.NoError(t, env.shares.Add(context.Background(), "t1", "bob"))
		assert.NoError(t, env.timers.Put(context.Background(), timerRecord("t1", "alice")))

		_, err := env.handler.HandleEvent(context.Background(), messageRequest("c1", "alice",
			`{"type":"updateTimer","timer":{"id":"t1","remainingDuration":60000}}`))
		assert.NoError(t, err)

		shared, err := env.shares.ListUsers(context.Background(), "t1")
		assert.NoError(t, err)
		assert.Equal(t, []string{"bob"}, shared)
		assert.Len(t, env.mgmt.sent("c2"), 1)
	})

	t.Run("non-owner update is dropped silently", func(t *testing.T) {
		env := newTestEnv()
		env.connect(t, "alice", "phone", "c1")
		env.connect(t, "bob", "phone", "c2")
		assert.NoError(t, env.timers.Put(context.Background(), timerRecord("t1", "alice")))

		resp, err := env.handler.HandleEvent(context.Background(), messageRequest("c2", "bob",
			`{"type":"updateTimer","timer":{"id":"t1","name":"hijacked"}}`))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		timer, err := env.timers.Get(context.Background(), "t1")
		assert.NoError(t, err)
		assert.NotEqual(t, "hijacked", timer.Name)
		assert.Empty(t, env.mgmt.sent("c1"))
		assert.Empty(t, env.mgmt.sent("c2"))
	})

	t.Run("unauthenticated connection is dropped", func(t *testing.T) {
		env := newTestEnv()
		resp, err := env.handler.HandleEvent(context.Background(), messageRequest("never-registered", "",
			`{"type":"updateTimer","timer":{"id":"t1"}}`))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		timer, err := env.timers.Get(context.Background(), "t1")
		assert.NoError(t, err)
		assert.Nil(t, timer)
	})

	t.Run("falls back to the connection directory for identity", func(t *testing.T) {
		env := newTestEnv()
		env.connect(t, "alice", "phone", "c1")

		// no authorizer claims on the message itself
		_, err := env.handler.HandleEvent(context.Background(), messageRequest("c1", "",
			`{"type":"updateTimer","timer":{"id":"t1"}}`))
		assert.NoError(t, err)

		timer, err := env.timers.Get(context.Background(), "t1")
		assert.NoError(t, err)
		assert.NotNil(t, timer)
		assert.Equal(t, "alice", timer.OwnerUserID)
	})
}

func TestHandleStopTimer(t *testing.T) {
	t.Run("deletes, cascades shares, notifies owner and members", func(t *testing.T) {
		env := newTestEnv()
		env.connect(t, "alice", "phone", "c1")
		env.connect(t, "bob", "phone", "c2")
		assert.NoError(t, env.timers.Put(context.Background(), timerRecord("t1", "alice")))
		assert.NoError(t, env.shares.Add(context.Background(), "t1", "bob"))

		resp, err := env.handler.HandleEvent(context.Background(), messageRequest("c1", "alice",
			`{"type":"stopTimer","timerId":"t1"}`))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		timer, err := env.timers.Get(context.Background(), "t1")
		assert.NoError(t, err)
		assert.Nil(t, timer)

		shared, err := env.shares.ListUsers(context.Background(), "t1")
		assert.NoError(t, err)
		assert.Empty(t, shared)

		for _, connID := range []string{"c1", "c2"} {
			sent := env.mgmt.sent(connID)
			assert.Len(t, sent, 1)
			var msg map[string]string
			assert.NoError(t, json.Unmarshal(sent[0], &msg))
			assert.Equal(t, MsgTimerRemoved, msg["type"])
			assert.Equal(t, "t1", msg["timerId"])
		}
	})

	t.Run("stopping an absent timer is idempotent", func(t *testing.T) {
		env := newTestEnv()
		env.connect(t, "alice", "phone", "c1")

		resp, err := env.handler.HandleEvent(context.Background(), messageRequest("c1", "alice",
			`{"type":"stopTimer","timerId":"t1"}`))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Empty(t, env.mgmt.sent("c1"))
	})

	t.Run("non-owner stop is dropped", func(t *testing.T) {
		env := newTestEnv()
		env.connect(t, "bob", "phone", "c2")
		assert.NoError(t, env.timers.Put(context.Background(), timerRecord("t1", "alice")))

		_, err := env.handler.HandleEvent(context.Background(), messageRequest("c2", "bob",
			`{"type":"stopTimer","timerId":"t1"}`))
		assert.NoError(t, err)

		timer, err := env.timers.Get(context.Background(), "t1")
		assert.NoError(t, err)
		assert.NotNil(t, timer)
	})
}

func TestAlways200(t *testing.T) {
	env := newTestEnv()

	cases := map[string]events.APIGatewayWebsocketProxyRequest{
		"unknown route":        wsRequest("$weird", "c1", "", ""),
		"garbage body":         wsRequest("$default", "c1", "alice", "not json"),
		"missing message type": messageRequest("c1", "alice", `{"timer":{"id":"t1"}}`),
		"unhandled type":       messageRequest("c1", "alice", `{"type":"subscribe"}`),
		"invalid update":       messageRequest("c1", "alice", `{"type":"updateTimer","timer":{}}`),
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			resp, err := env.handler.HandleEvent(context.Background(), req)
			assert.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)
			assert.Equal(t, "{}", resp.Body)
		})
	}
}
