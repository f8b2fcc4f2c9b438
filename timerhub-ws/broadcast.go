package timerhubws

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/timerhub/timerhub/timerhub-ws/connectiondao"
)

// ManagementAPIFactory builds a management client for a callback endpoint.
type ManagementAPIFactory func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI

// Broadcaster fans a timer event out to every live connection of every
// recipient user. Delivery is fire and forget: a failed push never fails the
// triggering request, and a gone endpoint is pruned from the directory.
type Broadcaster struct {
	Connections ConnectionDirectory
	Logger      zerolog.Logger
	Concurrency int // max concurrent PostToConnection calls (default 50)

	// NewManagementAPI may be overridden for tests; defaults to a
	// session-backed client per endpoint.
	NewManagementAPI ManagementAPIFactory

	// mgmtClients caches API Gateway Management API clients by endpoint
	mgmtMu      sync.RWMutex
	mgmtClients map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
}

// Send delivers the payload to every handle of every recipient user. All
// deliveries are attempted concurrently and Send waits for them to settle;
// a slow or failed delivery to one handle never blocks the others.
func (b *Broadcaster) Send(ctx context.Context, recipients []string, payload []byte) {
	concurrency := b.Concurrency
	if concurrency <= 0 {
		concurrency = 50
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, userID := range recipients {
		refs, err := b.Connections.ListHandlesForUser(ctx, userID)
		if err != nil {
			b.Logger.Error().Err(err).
				Str("user_id", userID).
				Msg("failed to resolve connections, skipping user")
			continue
		}
		for _, ref := range refs {
			ref := ref
			g.Go(func() error {
				b.deliver(gctx, ref, payload)
				return nil
			})
		}
	}

	g.Wait()
}

func (b *Broadcaster) deliver(ctx context.Context, ref connectiondao.HandleRef, payload []byte) {
	client := b.getManagementClient(ref.Endpoint)
	_, err := client.PostToConnectionWithContext(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(ref.ConnectionID),
		Data:         payload,
	})
	if err == nil {
		return
	}

	if IsEndpointGone(err) {
		b.Logger.Info().
			Str("connection_id", ref.ConnectionID).
			Msg("connection gone, pruning")
		if err := b.Connections.Unregister(ctx, ref.ConnectionID); err != nil {
			b.Logger.Error().Err(err).
				Str("connection_id", ref.ConnectionID).
				Msg("failed to prune gone connection")
		}
		return
	}

	b.Logger.Warn().Err(err).
		Str("connection_id", ref.ConnectionID).
		Msg("delivery failed, skipping")
}

// PostTo pushes a payload to a single connection, e.g. a pong echo.
func (b *Broadcaster) PostTo(ctx context.Context, endpoint, connID string, payload []byte) error {
	client := b.getManagementClient(endpoint)
	_, err := client.PostToConnectionWithContext(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connID),
		Data:         payload,
	})
	return err
}

func (b *Broadcaster) getManagementClient(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
	b.mgmtMu.RLock()
	if client, ok := b.mgmtClients[endpoint]; ok {
		b.mgmtMu.RUnlock()
		return client
	}
	b.mgmtMu.RUnlock()

	b.mgmtMu.Lock()
	defer b.mgmtMu.Unlock()

	// Double-check after acquiring write lock
	if client, ok := b.mgmtClients[endpoint]; ok {
		return client
	}

	if b.mgmtClients == nil {
		b.mgmtClients = make(map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI)
	}

	factory := b.NewManagementAPI
	if factory == nil {
		factory = func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
			sess := session.Must(session.NewSession(aws.NewConfig().WithEndpoint(endpoint)))
			return apigatewaymanagementapi.New(sess)
		}
	}
	client := factory(endpoint)
	b.mgmtClients[endpoint] = client
	return client
}
