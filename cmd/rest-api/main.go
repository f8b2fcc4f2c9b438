package main

import (
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v2"

	timerhubcli "github.com/timerhub/timerhub/timerhub-cli"
	timerhubddb "github.com/timerhub/timerhub/timerhub-ddb"
	timerhubrest "github.com/timerhub/timerhub/timerhub-rest"
	timerhubsecret "github.com/timerhub/timerhub/timerhub-secret"
	"github.com/timerhub/timerhub/timerhub-ws/sharedao"
	"github.com/timerhub/timerhub/timerhub-ws/timerdao"
)

var opts struct {
	AdminSecret string
}

var service = timerhubcli.NewService("rest-api")

// rest-api exposes one-shot reads for clients that want current timer state
// without holding a socket open, plus an admin force-delete. Live updates
// stay on the WebSocket path.
func main() {
	app := timerhubcli.App(
		service,
		action,
		append(
			append(
				timerhubcli.CommonFlags,
				timerhubcli.PortFlag(5001),
				timerhubcli.StringFlag("admin-secret", "Secrets Manager name holding the admin token", &opts.AdminSecret),
			),
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

	env := timerhubcli.CommonOpts.Env

	var admin struct {
		Token string `json:"token"`
	}
	if opts.AdminSecret != "" {
		if err := timerhubsecret.LoadSecret(sess, opts.AdminSecret, &admin); err != nil {
			return err
		}
	}

	s := &server{
		timers:     timerdao.Build(api, env),
		shares:     sharedao.Build(api, env),
		adminToken: admin.Token,
	}

	router := chi.NewRouter()
	timerhubrest.Middlewares(service, router)
	router.Get("/v1/timers/{timerID}", s.getTimer)
	router.Get("/v1/me/timers", s.listTimers)
	router.Delete("/v1/admin/timers/{timerID}", s.deleteTimer)

	return timerhubrest.Webserver(service, router)
}
