package timerdao

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/savaki/ddb"
	"github.com/tj/assert"
)

func withTable(t *testing.T, callback func(ctx context.Context, dao *DAO)) {
	var (
		s = session.Must(session.NewSession(aws.NewConfig().
			WithCredentials(credentials.NewStaticCredentials("blah", "blah", "")).
			WithEndpoint("http://localhost:8000").
			WithRegion("us-west-2")))
		api       = dynamodb.New(s)
		client    = ddb.New(api)
		tableName = fmt.Sprintf("timers-%v", time.Now().UnixNano())
		table     = client.MustTable(tableName, Timer{})
		dao       = New(api, tableName)
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := table.CreateTableIfNotExists(ctx)
	assert.Nil(t, err)
	defer table.DeleteTableIfExists(ctx)

	callback(ctx, dao)
}

func TestDAO(t *testing.T) {
	withTable(t, func(ctx context.Context, dao *DAO) {
		endTime := time.Now().Add(25*time.Minute).UnixNano() / int64(time.Millisecond)

		// absent timer reads back as nil
		timer, err := dao.Get(ctx, "t1")
		assert.Nil(t, err)
		assert.Nil(t, timer)

		err = dao.Put(ctx, Timer{
			ID:          "t1",
			OwnerUserID: "alice",
			Name:        "pomodoro",
			TotalMs:     1500000,
			RemainingMs: 1500000,
			EndTime:     &endTime,
			UpdatedAt:   time.Now().Unix(),
		})
		assert.Nil(t, err)

		timer, err = dao.Get(ctx, "t1")
		assert.Nil(t, err)
		assert.NotNil(t, timer)
		assert.Equal(t, "alice", timer.OwnerUserID)
		assert.Equal(t, "pomodoro", timer.Name)
		assert.NotNil(t, timer.EndTime)
		assert.Equal(t, endTime, *timer.EndTime)

		// put overwrites the full record; a cleared end time stays cleared
		timer.EndTime = nil
		timer.RemainingMs = 600000
		err = dao.Put(ctx, *timer)
		assert.Nil(t, err)

		timer, err = dao.Get(ctx, "t1")
		assert.Nil(t, err)
		assert.Nil(t, timer.EndTime)
		assert.EqualValues(t, 600000, timer.RemainingMs)

		err = dao.Put(ctx, Timer{ID: "t2", OwnerUserID: "alice", Name: "standup"})
		assert.Nil(t, err)
		err = dao.Put(ctx, Timer{ID: "t3", OwnerUserID: "bob", Name: "break"})
		assert.Nil(t, err)

		timers, err := dao.ListByOwner(ctx, "alice")
		assert.Nil(t, err)
		assert.Len(t, timers, 2)

		err = dao.Delete(ctx, "t1")
		assert.Nil(t, err)
		timer, err = dao.Get(ctx, "t1")
		assert.Nil(t, err)
		assert.Nil(t, timer)

		// deleting again is not an error
		err = dao.Delete(ctx, "t1")
		assert.Nil(t, err)
	})
}
