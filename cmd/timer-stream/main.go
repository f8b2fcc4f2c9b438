package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/urfave/cli/v2"

	timerhubcli "github.com/timerhub/timerhub/timerhub-cli"
	timerhubddb "github.com/timerhub/timerhub/timerhub-ddb"
	timerhubws "github.com/timerhub/timerhub/timerhub-ws"
	"github.com/timerhub/timerhub/timerhub-ws/connectiondao"
	"github.com/timerhub/timerhub/timerhub-ws/sharedao"
	"github.com/timerhub/timerhub/timerhub-ws/timerdao"
)

var service = timerhubcli.NewService("timer-stream")

// timer-stream watches the timers table stream and fans out a removal notice
// when a record disappears without going through stopTimer (admin deletes,
// batch cleanup). It also cascades the orphaned share edges.
func main() {
	app := timerhubcli.App(
		service,
		action,
		append(
			timerhubcli.CommonFlags,
			timerhubddb.DDBFlags...,
		)...,
	)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	sess := session.Must(session.NewSession(aws.NewConfig()))
	api, err := timerhubddb.DynamoDBAPI(sess)
	if err != nil {
		return err
	}

	var (
		env         = timerhubcli.CommonOpts.Env
		logger      = timerhubcli.Logger(service)
		shares      = sharedao.Build(api, env)
		connections = connectiondao.Build(api, env)
		broadcast   = &timerhubws.Broadcaster{
			Connections: connections,
			Logger:      logger,
		}
	)

	onDelete := func(ctx context.Context, oldValue map[string]*dynamodb.AttributeValue) error {
		var timer timerdao.Timer
		if err := timerhubddb.ParseItem(oldValue, &timer); err != nil {
			return err
		}
		if timer.ID == "" {
			return nil
		}

		// Collect recipients before cascading, while the edges still exist.
		shared, err := shares.ListUsers(ctx, timer.ID)
		if err != nil {
			return err
		}
		recipients := timerhubws.Recipients(timer.OwnerUserID, shared)

		broadcast.Send(ctx, recipients, timerhubws.TimerRemovedMessage(timer.ID))

		if err := shares.DeleteByTimer(ctx, timer.ID); err != nil {
			return err
		}

		logger.Info().
			Str("timer_id", timer.ID).
			Int("recipients", len(recipients)).
			Msg("out-of-band removal fanned out")
		return nil
	}

	handler := timerhubddb.NewHandler(service, nil, nil, onDelete)
	return handler.Start()
}
