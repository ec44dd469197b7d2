package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/zerosystem/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments over the ZERO_* environment. It
// returns a populated Config, a boolean indicating if the program should
// exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")

	defaults, err := app.LoadConfigFromEnv()
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	flagSet := flag.NewFlagSet("zerosys", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
zerosys - A service registry served over a request/response socket protocol.

Usage:
  zerosys [options] [DESCRIPTOR_PATH]
  zerosys -snapshot FILE [options] [DESCRIPTOR_PATH]
  zerosys -call EVENT -url URL [-data JSON] [options]
  zerosys -discover -url URL [options]
  zerosys -capability NAME -action ACTION -url URL [-data JSON] [options]
  zerosys -watch -url URL [options]

Arguments:
  DESCRIPTOR_PATH
    Path to a single .hcl file or a directory containing .hcl component
    descriptors.

Every option defaults to its ZERO_* environment variable (e.g. ZERO_ADDR).

Options:
`)
		flagSet.PrintDefaults()
	}

	addrFlag := flagSet.String("addr", defaults.Addr, "Address the socket.io server listens on.")
	descriptorsFlag := flagSet.String("descriptors", defaults.DescriptorPath, "Path to the descriptor file or directory.")
	dFlag := flagSet.String("d", "", "Path to the descriptor file or directory (shorthand).")
	healthPortFlag := flagSet.Int("healthcheck-port", defaults.HealthcheckPort, "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", defaults.LogFormat, "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", defaults.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	sessionDBFlag := flagSet.String("session-db", defaults.SessionDB, "SQLite file holding the client session. Empty keeps it in memory.")
	timeoutFlag := flagSet.Duration("request-timeout", defaults.RequestTimeout, "Default timeout of outbound requests.")
	otelFlag := flagSet.String("otel-endpoint", defaults.OTelEndpoint, "OTLP/HTTP endpoint for traces. Empty disables tracing.")
	snapshotFlag := flagSet.String("snapshot", "", "Write the effective component descriptors to this file and exit.")
	callFlag := flagSet.String("call", "", "Send one request with this event name and print the response.")
	urlFlag := flagSet.String("url", "", "Server URL for client operations.")
	dataFlag := flagSet.String("data", "", "JSON request data for -call, or the arguments for -capability.")
	discoverFlag := flagSet.Bool("discover", false, "Print the server's remote capabilities.")
	capabilityFlag := flagSet.String("capability", "", "Remote capability to invoke with -action.")
	actionFlag := flagSet.String("action", "", "Action of -capability to invoke.")
	watchFlag := flagSet.Bool("watch", false, "Print connection broadcasts until interrupted.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := *descriptorsFlag
	if *dFlag != "" {
		path = *dFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Descriptor path determined.", "path", path)

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		Addr:            *addrFlag,
		DescriptorPath:  path,
		HealthcheckPort: *healthPortFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		SessionDB:       *sessionDBFlag,
		RequestTimeout:  *timeoutFlag,
		OTelEndpoint:    *otelFlag,
		Snapshot:        *snapshotFlag,
		Call: app.CallConfig{
			URL:        *urlFlag,
			Event:      *callFlag,
			Data:       *dataFlag,
			Discover:   *discoverFlag,
			Capability: *capabilityFlag,
			Action:     *actionFlag,
			Watch:      *watchFlag,
		},
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
