// Package timerhubreport provides a scheduled Lambda harness that generates a
// JSON report and writes it to S3, or to stdout/a local file in dry mode.
package timerhubreport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/rs/zerolog"

	timerhubcli "github.com/timerhub/timerhub/timerhub-cli"
)

type GenerateCallback func(ctx context.Context) (interface{}, error)

type Handler struct {
	service timerhubcli.Service
	logger  zerolog.Logger
	s3      s3iface.S3API

	reportName string

	generate GenerateCallback
}

func ReportKey(serviceName, reportName string, timestamp time.Time) string {
	return fmt.Sprintf("%v/%v/%v/%v/%v", serviceName, reportName, timestamp.Format("2006-01-02"), timestamp.Format("15"), timestamp.Format("2006-01-02-15:04:05.json"))
}

func NewHandler(
	service timerhubcli.Service,
	reportName string,
	generate GenerateCallback,
) *Handler {
	session := session.Must(session.NewSession(aws.NewConfig()))
	return &Handler{
		service:    service,
		logger:     timerhubcli.Logger(service),
		s3:         s3.New(session),
		reportName: reportName,
		generate:   generate,
	}
}

func (h *Handler) Generate(ctx context.Context, _ json.RawMessage) error {
	h.logger.Info().Msg("generating report")
	report, err := h.generate(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to generate report")
		return err
	}
	reportBytes, err := json.Marshal(report)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to marshal report")
		return err
	}

	now := time.Now()
	if timerhubcli.CommonOpts.Dry {
		if ReportOpts.OutFile == "" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		h.logger.Info().Str("filename", ReportOpts.OutFile).Int("size", len(reportBytes)).Msg("dry run, saving report locally")
		return os.WriteFile(ReportOpts.OutFile, reportBytes, 0644)
	}

	filename := ReportKey(h.service.Name, h.reportName, now)
	h.logger.Info().Str("bucket", ReportOpts.Bucket).Str("filename", filename).Int("size", len(reportBytes)).Msg("saving report to s3")
	_, err = h.s3.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(ReportOpts.Bucket),
		Body:   bytes.NewReader(reportBytes),
		Key:    aws.String(filename),
	})
	return err
}

func (h *Handler) Start() error {
	switch {
	case timerhubcli.CommonOpts.Console:
		return h.Generate(context.Background(), nil)

	default:
		lambda.Start(h.Generate)
	}
	return nil
}
