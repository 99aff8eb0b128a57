package cmd

import (
	"github.com/go-kit/log/level"
	"github.com/nczempin/httpc-oneshot/internal/devserver"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development server",
		Long: `Run a small HTTP server to point oneshot at.

Routes:
  /         a JSON item
  /chunked  a chunked body: ab, cd, ef
  /echo     the method and request target`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd.ErrOrStderr(), level.AllowInfo())
			return devserver.New(addr, logger).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", getEnvString("ONESHOT_ADDR", devserver.DefaultAddr), "Listen address (env: ONESHOT_ADDR)")
	return cmd
}
