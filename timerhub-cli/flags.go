package timerhubcli

import "github.com/urfave/cli/v2"

var CommonOpts struct {
	Console bool
	Dry     bool
	Env     string
	Port    int
}

var ConsoleFlag = cli.BoolFlag{
	Name:        "console",
	Usage:       "whether to run in console mode or lambda mode",
	Value:       false,
	EnvVars:     []string{"CONSOLE"},
	Destination: &CommonOpts.Console,
}
var DryFlag = cli.BoolFlag{
	Name:        "dry",
	Usage:       "whether to actually persist any records or not",
	Value:       false,
	EnvVars:     []string{"DRY"},
	Destination: &CommonOpts.Dry,
}
var EnvFlag = cli.StringFlag{
	Name:        "env",
	Usage:       "environment",
	Value:       "local",
	EnvVars:     []string{"ENV"},
	Destination: &CommonOpts.Env,
}
var PortFlag = func(p int) *cli.IntFlag {
	return &cli.IntFlag{
		Name:        "port",
		Usage:       "Port to listen to, if running locally",
		Value:       p,
		EnvVars:     []string{"PORT"},
		Destination: &CommonOpts.Port,
	}
}

var CommonFlags = []cli.Flag{
	&ConsoleFlag,
	&DryFlag,
	&EnvFlag,
}

func envVar(name string) []string {
	var envVar []rune
	for _, r := range name {
		switch {
		case r == '-':
			envVar = append(envVar, '_')
		case r >= 'a' && r <= 'z':
			envVar = append(envVar, r-('a'-'A'))
		default:
			envVar = append(envVar, r)
		}
	}
	return []string{string(envVar)}
}

func StringFlag(name, usage string, destination *string, value ...string) *cli.StringFlag {
	flag := &cli.StringFlag{
		Name:        name,
		Usage:       usage,
		EnvVars:     envVar(name),
		Destination: destination,
	}
	if len(value) > 0 {
		flag.Value = value[0]
	}
	return flag
}

func BoolFlag(name, usage string, destination *bool) *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:        name,
		Usage:       usage,
		EnvVars:     envVar(name),
		Destination: destination,
	}
}
