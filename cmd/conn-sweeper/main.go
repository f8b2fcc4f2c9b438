package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/urfave/cli/v2"

	timerhubcli "github.com/timerhub/timerhub/timerhub-cli"
	timerhubcron "github.com/timerhub/timerhub/timerhub-cron"
	timerhubddb "github.com/timerhub/timerhub/timerhub-ddb"
	"github.com/timerhub/timerhub/timerhub-ws/connectiondao"
)

var service = timerhubcli.NewService("conn-sweeper")

// conn-sweeper reconciles the forward connection sets against the reverse
// handle records. DynamoDB TTL expires reverse records for connections that
// never disconnected cleanly; their forward-set entries linger until this
// sweep prunes them.
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
		logger      = timerhubcli.Logger(service)
		connections = connectiondao.Build(api, timerhubcli.CommonOpts.Env)
	)

	runOnce := func(ctx context.Context) error {
		var stale, pruned int
		err := connections.ScanIdentities(ctx, func(identity connectiondao.Identity) error {
			for _, connID := range identity.Handles {
				handle, err := connections.ResolveOwner(ctx, connID)
				if err != nil {
					return err
				}
				if handle != nil {
					continue
				}
				stale++
				if timerhubcli.CommonOpts.Dry {
					continue
				}
				if err := connections.PruneHandle(ctx, identity.UserID, identity.DeviceID, connID); err != nil {
					return err
				}
				pruned++
			}
			return nil
		})
		logger.Info().Int("stale", stale).Int("pruned", pruned).Msg("sweep complete")
		return err
	}

	handler := timerhubcron.NewHandler(service, runOnce)
	return handler.Start()
}
