// Package timerhubrest provides REST API utilities with CORS support and common middleware.
package timerhubrest

import (
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/savaki/apigateway"

	timerhubcli "github.com/timerhub/timerhub/timerhub-cli"
)

func Middlewares(service timerhubcli.Service, routes chi.Router) chi.Router {
	routes.Use(
		withCORS(),
		withLogger(timerhubcli.Logger(service)),
		middleware.Recoverer,
	)
	return routes
}

func Webserver(service timerhubcli.Service, routes chi.Router) error {
	logger := timerhubcli.Logger(service)

	if timerhubcli.CommonOpts.Console {
		logger.Info().Int("port", timerhubcli.CommonOpts.Port).Msg("starting http server")
		addr := fmt.Sprintf(":%v", timerhubcli.CommonOpts.Port)
		return http.ListenAndServe(addr, routes)
	}

	lambda.Start(apigateway.Wrap(routes, timerhubcli.CommonOpts.Env))
	return nil
}

func withCORS() func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-User-Id", "X-Admin-Token"},
	})
}

func withLogger(logger zerolog.Logger) func(handler http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := logger.WithContext(req.Context())
			req = req.WithContext(ctx)
			handler.ServeHTTP(w, req)
		})
	}
}
