package sharedao

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// DAO provides access to the sharing relationships table.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
}

// New creates a new shares DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Share{}),
		api:       api,
		tableName: tableName,
	}
}

// Add creates a sharing edge. Re-adding an existing edge overwrites it in
// place, so the call is idempotent.
func (d *DAO) Add(ctx context.Context, timerID, userID string) error {
	share := Share{
		ShareID:    ShareKey(timerID, userID),
		TimerID:    timerID,
		SharedWith: userID,
		CreatedAt:  time.Now().Unix(),
	}
	if err := d.table.Put(share).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to share timer %v with %v: %w", timerID, userID, err)
	}
	return nil
}

// Remove deletes a sharing edge. Removing an absent edge is a no-op.
func (d *DAO) Remove(ctx context.Context, timerID, userID string) error {
	if err := d.table.Delete(ShareKey(timerID, userID)).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to unshare timer %v from %v: %w", timerID, userID, err)
	}
	return nil
}

// Has reports whether a timer is shared with a user.
func (d *DAO) Has(ctx context.Context, timerID, userID string) (bool, error) {
	var share Share
	if err := d.table.Get(ShareKey(timerID, userID)).ScanWithContext(ctx, &share); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check share for timer %v and user %v: %w", timerID, userID, err)
	}
	return true, nil
}

// ListUsers returns every user a timer is shared with, via the TimerIndex GSI.
func (d *DAO) ListUsers(ctx context.Context, timerID string) ([]string, error) {
	shares, err := d.queryByTimer(ctx, timerID)
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(shares))
	for _, share := range shares {
		users = append(users, share.SharedWith)
	}
	return users, nil
}

// ListTimers returns every timer shared with a user, via the UserIndex GSI.
func (d *DAO) ListTimers(ctx context.Context, userID string) ([]string, error) {
	var shares []Share
	err := d.table.Query("#SharedWith = ?", userID).
		IndexName("UserIndex").
		FindAllWithContext(ctx, &shares)
	if err != nil {
		return nil, fmt.Errorf("failed to query shares for user %v: %w", userID, err)
	}
	timers := make([]string, 0, len(shares))
	for _, share := range shares {
		timers = append(timers, share.TimerID)
	}
	return timers, nil
}

// DeleteByTimer removes every sharing edge for a timer.
func (d *DAO) DeleteByTimer(ctx context.Context, timerID string) error {
	shares, err := d.queryByTimer(ctx, timerID)
	if err != nil {
		return err
	}

	// Batch delete in chunks of 25 (DynamoDB limit)
	const batchSize = 25
	for i := 0; i < len(shares); i += batchSize {
		end := i + batchSize
		if end > len(shares) {
			end = len(shares)
		}
		chunk := shares[i:end]

		writeRequests := make([]*dynamodb.WriteRequest, len(chunk))
		for j, share := range chunk {
			key, err := dynamodbattribute.MarshalMap(map[string]string{"pk": share.ShareID})
			if err != nil {
				return fmt.Errorf("failed to marshal key for share %v: %w", share.ShareID, err)
			}
			writeRequests[j] = &dynamodb.WriteRequest{
				DeleteRequest: &dynamodb.DeleteRequest{Key: key},
			}
		}

		unprocessed := map[string][]*dynamodb.WriteRequest{
			d.tableName: writeRequests,
		}

		const maxRetries = 5
		for attempt := 0; attempt < maxRetries; attempt++ {
			output, err := d.api.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: unprocessed,
			})
			if err != nil {
				return fmt.Errorf("failed to batch delete shares for timer %v: %w", timerID, err)
			}
			if len(output.UnprocessedItems) == 0 {
				break
			}
			unprocessed = output.UnprocessedItems
			if attempt < maxRetries-1 {
				backoff := time.Duration(1<<attempt) * 100 * time.Millisecond
				timer := time.NewTimer(backoff)
				select {
				case <-ctx.Done():
					timer.Stop()
					return fmt.Errorf("context cancelled during retry for timer %v: %w", timerID, ctx.Err())
				case <-timer.C:
				}
			} else {
				return fmt.Errorf("failed to delete all shares for timer %v: %d items unprocessed after %d retries", timerID, len(unprocessed[d.tableName]), maxRetries)
			}
		}
	}

	return nil
}

func (d *DAO) queryByTimer(ctx context.Context, timerID string) ([]Share, error) {
	var shares []Share
	err := d.table.Query("#TimerID = ?", timerID).
		IndexName("TimerIndex").
		FindAllWithContext(ctx, &shares)
	if err != nil {
		return nil, fmt.Errorf("failed to query shares for timer %v: %w", timerID, err)
	}
	return shares, nil
}
