package connectiondao

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// DAO provides access to the connection directory. The directory is split
// across two tables kept in lockstep: identities (forward, identity to set of
// handles) and handles (reverse, handle to identity).
type DAO struct {
	identities        *ddb.Table
	handles           *ddb.Table
	api               dynamodbiface.DynamoDBAPI
	identityTableName string
	handleTableName   string
	connTTL           time.Duration
}

// New creates a new connection directory DAO.
func New(api dynamodbiface.DynamoDBAPI, identityTableName, handleTableName string) *DAO {
	client := ddb.New(api)
	return &DAO{
		identities:        client.MustTable(identityTableName, Identity{}),
		handles:           client.MustTable(handleTableName, Handle{}),
		api:               api,
		identityTableName: identityTableName,
		handleTableName:   handleTableName,
		connTTL:           2 * time.Hour,
	}
}

// WithTTL overrides the reverse-record TTL (default 2 hours).
func (d *DAO) WithTTL(ttl time.Duration) *DAO {
	d.connTTL = ttl
	return d
}

// Register adds a connection handle for a (user, device) pair and records the
// reverse mapping. Re-registering an existing handle is a no-op: the handle
// set add is idempotent and safe to interleave with concurrent prunes of
// other handles.
func (d *DAO) Register(ctx context.Context, userID, deviceID, connID, endpoint string) error {
	now := time.Now()
	_, err := d.api.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.identityTableName),
		Key: map[string]*dynamodb.AttributeValue{
			"pk": {S: aws.String(IdentityKey(userID, deviceID))},
		},
		UpdateExpression: aws.String("SET user_id = :u, device_id = :d, endpoint = :e, updated_at = :t ADD handles :h"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":u": {S: aws.String(userID)},
			":d": {S: aws.String(deviceID)},
			":e": {S: aws.String(endpoint)},
			":t": {N: aws.String(strconv.FormatInt(now.Unix(), 10))},
			":h": {SS: []*string{aws.String(connID)}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to register connection %v for %v/%v: %w", connID, userID, deviceID, err)
	}

	handle := Handle{
		ConnectionID: connID,
		UserID:       userID,
		DeviceID:     deviceID,
		Endpoint:     endpoint,
		ConnectedAt:  now.Unix(),
		TTL:          now.Add(d.connTTL).Unix(),
	}
	if err := d.handles.Put(handle).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to store reverse mapping for connection %v: %w", connID, err)
	}
	return nil
}

// Unregister removes a connection handle given only the handle. Unknown
// handles are a silent no-op; disconnect notices for untracked connections
// must not fail the caller.
func (d *DAO) Unregister(ctx context.Context, connID string) error {
	handle, err := d.ResolveOwner(ctx, connID)
	if err != nil {
		return err
	}
	if handle == nil {
		return nil
	}

	if err := d.PruneHandle(ctx, handle.UserID, handle.DeviceID, connID); err != nil {
		return err
	}
	if err := d.handles.Delete(connID).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to delete reverse mapping for connection %v: %w", connID, err)
	}
	return nil
}

// PruneHandle removes a single handle from the forward set for a known
// (user, device) pair. Removing a non-member handle is a no-op.
func (d *DAO) PruneHandle(ctx context.Context, userID, deviceID, connID string) error {
	_, err := d.api.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.identityTableName),
		Key: map[string]*dynamodb.AttributeValue{
			"pk": {S: aws.String(IdentityKey(userID, deviceID))},
		},
		UpdateExpression: aws.String("DELETE handles :h"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":h": {SS: []*string{aws.String(connID)}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to prune connection %v for %v/%v: %w", connID, userID, deviceID, err)
	}
	return nil
}

// ResolveOwner resolves a connection handle back to its identity. Returns
// nil, nil when the handle is unknown.
func (d *DAO) ResolveOwner(ctx context.Context, connID string) (*Handle, error) {
	var handle Handle
	if err := d.handles.Get(connID).ScanWithContext(ctx, &handle); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve connection %v: %w", connID, err)
	}
	return &handle, nil
}

// ListHandlesForUser returns every live handle across every device of the
// user, using the UserIndex GSI on the forward table.
func (d *DAO) ListHandlesForUser(ctx context.Context, userID string) ([]HandleRef, error) {
	var identities []Identity
	err := d.identities.Query("#UserID = ?", userID).
		IndexName("UserIndex").
		FindAllWithContext(ctx, &identities)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections for user %v: %w", userID, err)
	}

	var refs []HandleRef
	for _, identity := range identities {
		for _, connID := range identity.Handles {
			refs = append(refs, HandleRef{
				DeviceID:     identity.DeviceID,
				ConnectionID: connID,
				Endpoint:     identity.Endpoint,
			})
		}
	}
	return refs, nil
}

// ScanIdentities walks every forward record; used by the sweeper to
// reconcile forward handle sets against expired reverse records.
func (d *DAO) ScanIdentities(ctx context.Context, fn func(Identity) error) error {
	var callbackErr error
	err := d.api.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
		TableName: aws.String(d.identityTableName),
	}, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		var identities []Identity
		if err := dynamodbattribute.UnmarshalListOfMaps(page.Items, &identities); err != nil {
			callbackErr = fmt.Errorf("failed to unmarshal identity page: %w", err)
			return false
		}
		for _, identity := range identities {
			if err := fn(identity); err != nil {
				callbackErr = err
				return false
			}
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to scan identities: %w", err)
	}
	return callbackErr
}
