package main

import (
	"github.com/spf13/cobra"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/config"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/logging"
)

// newRootCmd runs the wrapper in the foreground. The server's exit code is
// stored in exitCode.
func newRootCmd(exitCode *int) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "mcwrap",
		Short: "Run a Minecraft server with scheduled saves and backups",
		Long: `mcwrap starts the Minecraft server as a child process, takes over its
periodic saving, archives the server directory after every save and relays
commands typed on stdin or sent with mcwrapctl to the server console.

Required settings (environment or config file):
  SERVERJAR       server jar
  SERVERDIR       server working directory, the directory that gets archived
  BACKUPDIR       timestamped archives
  NAMEDBACKUPDIR  symlinks for backups named with "#save <alias>"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logging.Init(cfg.LoggerConfig())

			app, err := newApp(cfg)
			if err != nil {
				return err
			}
			code, err := app.run(cmd.Context())
			*exitCode = code
			return err
		},
	}

	root.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file (default $"+config.PathEnvVar+")")
	return root
}
