package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/BenBurnett/gqlexec"
	"github.com/BenBurnett/gqlexec/internal/config"
	"github.com/BenBurnett/gqlexec/internal/input"
	"github.com/BenBurnett/gqlexec/internal/otel"
	log "github.com/jensneuse/abstractlogger"
	"github.com/spf13/cobra"
	"github.com/vektah/gqlparser/v2/ast"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newClientCmd builds the client command.
func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "executes a query, mutation or subscription and prints every response",
		Example: `gqlexec client -e http://localhost:8000/api/graphql -q hello.graphql
gqlexec client -e ws://localhost:8000/api/graphql -q events.graphql -v since=10 -r 500ms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}
			v, err := config.NewViper(cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := config.Load(v, cmd.Flags())
			if err != nil {
				return err
			}
			return runClient(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.String(config.KeyConfig, "", "YAML or JSON file holding any of the flags below")
	flags.StringP(config.KeyServerEndpoint, "e", "", "Endpoint where the server accepts the connections (e.g., http://localhost:8000/api/graphql)")
	flags.StringP(config.KeyQueryPath, "q", "", "Path of the query that has to be executed")
	flags.StringP(config.KeyOperationName, "o", "", "Name of the operation that has to be executed")
	flags.String(config.KeyVariablesFromJSON, "", "JSON (or YAML) file containing variables to be sent to the server")
	flags.StringArrayP(config.KeyVariable, "v", nil, "Variable to be sent to the server, as name=value. Repeatable")
	flags.StringArray(config.KeyHTTPHeader, nil, "HTTP header to be sent to the server, as name=value. Repeatable")
	flags.StringP(config.KeyReconnect, "r", "", "Retry failed attempts after this duration, forever (e.g., 500ms)")
	flags.Duration(config.KeyTimeout, 0, "Timeout of each HTTP request (0 means none)")
	flags.Duration(config.KeyAckTimeout, 0, "Time to wait for the WebSocket connection acknowledgment (0 means forever)")
	flags.Bool(config.KeyStrictAck, false, "Require the first WebSocket message to be connection_ack")
	flags.String(config.KeyLogLevel, "info", "Log level: debug, info, warn or error")
	flags.String(config.KeyOtelEndpoint, "", "OTLP collector endpoint; tracing is off when empty")
	flags.String(config.KeyOtelService, "gqlexec", "OpenTelemetry service name")
	return cmd
}

func newLogger(level string, errOut io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(errOut), lvl)
	return zap.New(core), nil
}

func runClient(ctx context.Context, cfg *config.Config, out, errOut io.Writer) error {
	zapLogger, err := newLogger(cfg.LogLevel, errOut)
	if err != nil {
		return err
	}
	defer zapLogger.Sync() // nolint
	logger := log.NewZapLogger(zapLogger, log.DebugLevel)

	shutdown, err := otel.Setup(ctx, cfg.OtelEndpoint, cfg.OtelService)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", log.Error(err))
		}
	}()

	req, err := buildRequest(cfg)
	if err != nil {
		return err
	}

	transport, err := gqlexec.ClassifyEndpoint(req.Endpoint)
	if err != nil {
		return err
	}
	operation, err := inspectOperation(req.Query, cfg.OperationName)
	switch {
	case err != nil:
		logger.Warn("query not checked, sending it as is", log.Error(err))
	case operation.Type == ast.Subscription && transport == gqlexec.TransportHTTP:
		logger.Warn("subscription sent over HTTP; the server may reject it",
			log.String("operation", operation.Name),
		)
	}

	policy := gqlexec.NoReconnect()
	if cfg.Reconnect {
		policy = gqlexec.ReconnectEvery(cfg.ReconnectInterval)
	}

	client := gqlexec.NewClient(
		gqlexec.WithLogger(logger),
		gqlexec.WithTimeout(cfg.Timeout),
		gqlexec.WithAckTimeout(cfg.AckTimeout),
		gqlexec.WithStrictAck(cfg.StrictAck),
	)

	err = client.Execute(ctx, req, gqlexec.NewJSONSink(out), policy)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func buildRequest(cfg *config.Config) (*gqlexec.Request, error) {
	query, err := input.LoadQuery(cfg.QueryPath)
	if err != nil {
		return nil, err
	}
	overrides, err := input.ParseVariables(cfg.Variables)
	if err != nil {
		return nil, err
	}
	variables, err := input.LoadVariables(cfg.VariablesFile, overrides)
	if err != nil {
		return nil, err
	}
	headers, err := input.ParseHeaders(cfg.Headers)
	if err != nil {
		return nil, err
	}

	req := &gqlexec.Request{
		Endpoint:  cfg.ServerEndpoint,
		Headers:   headers,
		Query:     query,
		Variables: variables,
	}
	if cfg.OperationName != "" {
		name := cfg.OperationName
		req.OperationName = &name
	}
	return req, nil
}

// inspectOperation finds the operation the server will run. The server has
// the final say, so a failure here is only reported.
func inspectOperation(query, name string) (input.Operation, error) {
	ops, err := input.ParseOperations(query)
	if err != nil {
		return input.Operation{}, err
	}
	return input.SelectOperation(ops, name)
}
