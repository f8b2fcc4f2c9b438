package timerdao

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// DAO provides access to the timers table. The DAO does not authorize;
// ownership checks are the caller's responsibility.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
}

// New creates a new timers DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Timer{}),
		api:       api,
		tableName: tableName,
	}
}

// Get retrieves a timer by id. Returns nil if not found.
func (d *DAO) Get(ctx context.Context, timerID string) (*Timer, error) {
	var timer Timer
	if err := d.table.Get(timerID).ScanWithContext(ctx, &timer); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get timer %v: %w", timerID, err)
	}
	return &timer, nil
}

// Put stores a timer record, creating or overwriting the full record.
func (d *DAO) Put(ctx context.Context, timer Timer) error {
	if err := d.table.Put(timer).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to put timer %v: %w", timer.ID, err)
	}
	return nil
}

// Delete removes a timer record by id. Deleting an absent timer is not an
// error at this layer.
func (d *DAO) Delete(ctx context.Context, timerID string) error {
	if err := d.table.Delete(timerID).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to delete timer %v: %w", timerID, err)
	}
	return nil
}

// ListByOwner returns all timers owned by a user using the OwnerIndex GSI.
func (d *DAO) ListByOwner(ctx context.Context, userID string) ([]Timer, error) {
	var timers []Timer
	err := d.table.Query("#OwnerUserID = ?", userID).
		IndexName("OwnerIndex").
		FindAllWithContext(ctx, &timers)
	if err != nil {
		return nil, fmt.Errorf("failed to list timers for owner %v: %w", userID, err)
	}
	return timers, nil
}
