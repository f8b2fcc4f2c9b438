package timerhubddb

import (
	timerhubcli "github.com/timerhub/timerhub/timerhub-cli"
	"github.com/urfave/cli/v2"
)

var DDBOpts struct {
	DAXCluster string
	TableName  string
}

var DAXClusterFlag = timerhubcli.StringFlag("dax-cluster", "The DAX cluster to connect to", &DDBOpts.DAXCluster)
var TableNameFlag = timerhubcli.StringFlag("table-name", "The table name to read streams from", &DDBOpts.TableName)

var DDBFlags = []cli.Flag{
	DAXClusterFlag,
	TableNameFlag,
}
