package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Laisky/weather-mcp-gateway/internal/mcp"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/auth"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/calllog"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/catalog"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/dispatch"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/keys"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/tools"
	"github.com/Laisky/weather-mcp-gateway/internal/mcp/weather"
	"github.com/Laisky/weather-mcp-gateway/internal/web"
	"github.com/Laisky/weather-mcp-gateway/library/log"
)

const shutdownTimeout = 15 * time.Second

var apiCMD = &cobra.Command{
	Use:   "api",
	Short: "api",
	Long:  `serve the REST and MCP endpoints`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		handler, err := buildGateway(time.Now, log.Logger)
		if err != nil {
			return errors.Wrap(err, "build gateway")
		}

		return serve(ctx, gconfig.Shared.GetString("listen"), handler, log.Logger)
	},
}

func init() {
	rootCMD.AddCommand(apiCMD)
}

// buildGateway wires the key registry, the upstream client, the dispatcher and both
// HTTP surfaces into one handler.
func buildGateway(clock func() time.Time, logger logSDK.Logger) (http.Handler, error) {
	registry, err := keys.LoadFromConfig(clock().UTC())
	if err != nil {
		return nil, errors.Wrap(err, "load api keys")
	}
	logger.Info("api key registry loaded", zap.Int("keys", registry.Len()))

	authn, err := auth.NewAuthenticator(registry, logger.Named("auth"))
	if err != nil {
		return nil, errors.Wrap(err, "new authenticator")
	}

	upstream, err := weather.NewClient(
		append(weather.LoadSettingsFromConfig().Options(), weather.WithLogger(logger.Named("weather")))...,
	)
	if err != nil {
		return nil, errors.Wrap(err, "new weather client")
	}

	alerts, err := tools.NewAlertsTool(upstream, logger.Named(tools.AlertsToolName))
	if err != nil {
		return nil, errors.Wrap(err, "new alerts tool")
	}
	forecast, err := tools.NewForecastTool(upstream, logger.Named(tools.ForecastToolName))
	if err != nil {
		return nil, errors.Wrap(err, "new forecast tool")
	}

	resources, err := catalog.NewResourceCatalog(catalog.DefaultResources()...)
	if err != nil {
		return nil, errors.Wrap(err, "new resource catalog")
	}

	callLog, err := calllog.NewService(logger.Named("calllog"), calllog.Clock(clock))
	if err != nil {
		return nil, errors.Wrap(err, "new call log")
	}

	mcpSettings := mcp.LoadSettingsFromConfig()
	dispatcher, err := dispatch.New(
		mcpSettings.EnabledHandlers([]tools.Tool{alerts, forecast}),
		resources,
		dispatch.WithRecorder(callLog),
		dispatch.WithLogger(logger.Named("dispatch")),
	)
	if err != nil {
		return nil, errors.Wrap(err, "new dispatcher")
	}

	mcpServer, err := mcp.NewServer(dispatcher, authn, mcpSettings, logger.Named("mcp"))
	if err != nil {
		return nil, errors.Wrap(err, "new mcp server")
	}

	webServer, err := web.NewServer(dispatcher, authn, web.LoadSettingsFromConfig(), logger.Named("web"),
		web.WithMCPHandler(mcpServer.Handler()),
		web.WithCallLog(callLog),
		web.WithClock(web.Clock(clock)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "new web server")
	}

	return webServer.Handler(), nil
}

// serve runs the HTTP server until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, addr string, handler http.Handler, logger logSDK.Logger) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening on http", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen and serve")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown http server")
		}
		return nil
	})

	return g.Wait()
}
