package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"auditx/internal/bootstrap"
	"auditx/internal/config"
)

// cli holds state shared by subcommands. The environment is opened on first
// use so offline commands never touch the store.
type cli struct {
	debug bool
	cfg   config.Config
	env   *bootstrap.Env
}

func (c *cli) open() (*bootstrap.Env, error) {
	if c.env != nil {
		return c.env, nil
	}
	env, err := bootstrap.Open(c.cfg, c.debug)
	if err != nil {
		return nil, err
	}
	c.env = env
	return env, nil
}

func (c *cli) close() {
	if c.env != nil {
		_ = c.env.Close()
		c.env = nil
	}
}

func execute() error {
	c := &cli{}
	defer c.close()
	return newRootCmd(c).Execute()
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:          "auditx",
		Short:        "auditx - specialization audit review toolkit",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&c.debug, "debug", false, "development logging")

	root.AddCommand(
		newSyncCmd(c),
		newStatusCmd(c),
		newShowCmd(c),
		newExportCmd(c),
		newNormalizeCmd(),
		newAskCmd(c),
		newUploadCmd(c),
		newIntakeCmd(c),
		newListenCmd(c),
		newServeCmd(c),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
