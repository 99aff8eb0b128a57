package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/nczempin/httpc-oneshot/client"
	"github.com/nczempin/httpc-oneshot/config"
	"github.com/nczempin/httpc-oneshot/transport"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

type sendOptions struct {
	method     string
	legacy     bool
	extract    string
	transport  string
	unixSocket string
	noProgress bool
	noColor    bool
	configPath string
	logLevel   string
}

func newSendCmd() *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send <url>",
		Short: "Send one request and print the response body",
		Long: `Send one HTTP/1.1 request to an http:// URL and print the body.

Examples:
  oneshot send http://localhost:9090/
  oneshot send -X PATCH http://localhost:9090/echo
  oneshot send http://localhost:9090/ --extract list_of_items.#.inner_data
  oneshot send http://localhost/status --transport unix --unix-socket /run/app.sock
  oneshot send http://localhost:9090/ --legacy`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.method, "request", "X", "GET", "Method: GET, POST, DELETE or PATCH")
	f.BoolVar(&opts.legacy, "legacy", false, "Print the placeholder instead of failing")
	f.StringVar(&opts.extract, "extract", "", "Print only the value at this gjson path of a JSON body")
	f.StringVar(&opts.transport, "transport", getEnvString("ONESHOT_TRANSPORT", ""),
		fmt.Sprintf("Transport backend: %s (env: ONESHOT_TRANSPORT)", strings.Join(transport.Backends, ", ")))
	f.StringVar(&opts.unixSocket, "unix-socket", "", "Socket path for the unix transport")
	f.BoolVar(&opts.noProgress, "no-progress", false, "Do not echo the exchange to stderr")
	f.BoolVar(&opts.noColor, "no-color", getEnvBool("ONESHOT_NO_COLOR", false), "Disable colored output (env: ONESHOT_NO_COLOR)")
	f.StringVar(&opts.configPath, "config", getEnvString("ONESHOT_CONFIG", ""), "Path to config file (env: ONESHOT_CONFIG)")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error, none")
	return cmd
}

// mergeFlags applies explicitly set flags on top of the file config.
func mergeFlags(cmd *cobra.Command, cfg *config.Config, opts *sendOptions) {
	if opts.transport != "" {
		cfg.Transport = opts.transport
	}
	if opts.unixSocket != "" {
		cfg.UnixSocket = opts.unixSocket
	}
	if cmd.Flags().Changed("no-progress") {
		cfg.Progress = config.BoolPtr(!opts.noProgress)
	}
	if opts.noColor {
		cfg.NoColor = config.BoolPtr(true)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
}

func runSend(cmd *cobra.Command, opts *sendOptions, rawURL string) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	mergeFlags(cmd, cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	logger := newLogger(stderr, cfg.LevelOption())

	clientOpts := []client.Option{
		client.WithLogger(logger),
		client.WithTransport(cfg.Transport),
		client.WithUnixSocket(cfg.UnixSocket),
		client.WithDefaultPort(uint16(cfg.DefaultPort)),
		client.WithConnGrace(cfg.ConnGrace()),
		client.WithPlaceholder(cfg.Placeholder),
	}
	if cfg.GetProgress() {
		clientOpts = append(clientOpts, client.WithProgress(stderr, cfg.GetNoColor()))
	}
	c := client.NewHttpClient(clientOpts...)

	if opts.legacy {
		body := c.SendCompat(cmd.Context(), rawURL, opts.method)
		return printBody(cmd.OutOrStdout(), body, "")
	}

	body, err := c.Send(cmd.Context(), rawURL, opts.method)
	if err != nil {
		level.Error(logger).Log("msg", "request failed", "url", rawURL, "err", err)
		return err
	}
	return printBody(cmd.OutOrStdout(), body, opts.extract)
}

func printBody(w io.Writer, body, path string) error {
	if path == "" {
		_, err := io.WriteString(w, body)
		return err
	}
	if !gjson.Valid(body) {
		return fmt.Errorf("--extract: response body is not JSON")
	}
	r := gjson.Get(body, path)
	if !r.Exists() {
		return fmt.Errorf("--extract: nothing at path %q", path)
	}
	_, err := fmt.Fprintln(w, r.String())
	return err
}
