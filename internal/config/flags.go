package config

import (
	"github.com/spf13/pflag"
)

// Options are the command-line flags of the binary.
type Options struct {
	ConfigPath string
	EnvFile    string
	Once       bool
}

// ParseFlags parses the binary's command-line arguments (without the program name).
func ParseFlags(args []string) (Options, error) {
	var opts Options
	fs := pflag.NewFlagSet("localainews", pflag.ContinueOnError)
	fs.StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file (default ./config.yaml)")
	fs.StringVar(&opts.EnvFile, "env-file", ".env", "path to .env file")
	fs.BoolVar(&opts.Once, "once", false, "run a single ingestion cycle and exit")
	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	return opts, nil
}
