package timerhubreport

import (
	timerhubcli "github.com/timerhub/timerhub/timerhub-cli"
	"github.com/urfave/cli/v2"
)

var ReportOpts struct {
	Bucket string

	OutFile string
}

var BucketFlag = timerhubcli.StringFlag("bucket", "The bucket to write the report to", &ReportOpts.Bucket)
var OutFileFlag = timerhubcli.StringFlag("out-file", "The file to write the report to, when running in dry mode", &ReportOpts.OutFile)

var ReportFlags = []cli.Flag{
	BucketFlag,
	OutFileFlag,
}
