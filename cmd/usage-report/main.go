package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/urfave/cli/v2"

	timerhubcli "github.com/timerhub/timerhub/timerhub-cli"
	timerhubreport "github.com/timerhub/timerhub/timerhub-report"
	"github.com/timerhub/timerhub/timerhub-ws/connectiondao"
	"github.com/timerhub/timerhub/timerhub-ws/sharedao"
	"github.com/timerhub/timerhub/timerhub-ws/timerdao"
)

var service = timerhubcli.NewService("usage-report")

func main() {
	app := timerhubcli.App(
		service,
		action,
		append(
			timerhubcli.CommonFlags,
			timerhubreport.ReportFlags...,
		)...,
	)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

type usageReport struct {
	Timers      int64  `json:"timers"`
	Shares      int64  `json:"shares"`
	Connections int64  `json:"connections"`
	GeneratedAt string `json:"generatedAt"`
}

func action(_ *cli.Context) error {
	sess := session.Must(session.NewSession(aws.NewConfig()))
	api := dynamodb.New(sess)
	env := timerhubcli.CommonOpts.Env

	generate := func(ctx context.Context) (interface{}, error) {
		timers, err := countTable(ctx, api, timerdao.TableName(env))
		if err != nil {
			return nil, err
		}
		shares, err := countTable(ctx, api, sharedao.TableName(env))
		if err != nil {
			return nil, err
		}
		connections, err := countTable(ctx, api, connectiondao.HandleTableName(env))
		if err != nil {
			return nil, err
		}
		return usageReport{
			Timers:      timers,
			Shares:      shares,
			Connections: connections,
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		}, nil
	}

	handler := timerhubreport.NewHandler(service, "usage", generate)
	return handler.Start()
}

func countTable(ctx context.Context, api dynamodbiface.DynamoDBAPI, tableName string) (int64, error) {
	var total int64
	err := api.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
		TableName: aws.String(tableName),
		Select:    aws.String(dynamodb.SelectCount),
	}, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		total += aws.Int64Value(page.Count)
		return true
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
