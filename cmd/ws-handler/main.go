package main

import (
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/urfave/cli/v2"

	timerhubcli "github.com/timerhub/timerhub/timerhub-cli"
	timerhubddb "github.com/timerhub/timerhub/timerhub-ddb"
	timerhubws "github.com/timerhub/timerhub/timerhub-ws"
	"github.com/timerhub/timerhub/timerhub-ws/connectiondao"
	"github.com/timerhub/timerhub/timerhub-ws/publish"
	"github.com/timerhub/timerhub/timerhub-ws/sharedao"
	"github.com/timerhub/timerhub/timerhub-ws/timerdao"
)

var opts struct {
	Audit bool
}

var service = timerhubcli.NewService("ws-handler")

func main() {
	app := timerhubcli.App(
		service,
		action,
		append(
			append(
				timerhubcli.CommonFlags,
				timerhubddb.DDBFlags...,
			),
			timerhubcli.BoolFlag("audit", "publish timer events to the audit stream", &opts.Audit),
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
		metrics     = timerhubcli.NewMetrics(service, cloudwatch.New(sess))
		connections = connectiondao.Build(api, env)
	)

	handler := &timerhubws.Handler{
		Timers:      timerdao.Build(api, env),
		Shares:      sharedao.Build(api, env),
		Connections: connections,
		Broadcast: &timerhubws.Broadcaster{
			Connections: connections,
			Logger:      logger,
		},
		Metrics: &metrics,
		Logger:  logger,
	}
	if opts.Audit {
		handler.Events = publish.Build(env)
	}

	lambda.Start(handler.HandleEvent)
	return nil
}
