package cmd

import (
	"context"

	"github.com/foomo/annotationserver/pkg/annotation"
	"github.com/foomo/annotationserver/pkg/handler"
	"github.com/foomo/annotationserver/pkg/session"
	"github.com/foomo/keel"
	"github.com/foomo/keel/healthz"
	"github.com/foomo/keel/net/http/middleware"
	"github.com/foomo/keel/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewHTTPCommand() *cobra.Command {
	v := newViper()
	service.DefaultHTTPPProfAddr = ":6060"

	cmd := &cobra.Command{
		Use:   "http",
		Short: "Start http server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svr := keel.NewServer(
				keel.WithHTTPPrometheusService(servicePrometheusEnabledFlag(v)),
				keel.WithHTTPHealthzService(serviceHealthzEnabledFlag(v)),
				keel.WithPrometheusMeter(servicePrometheusEnabledFlag(v)),
				keel.WithGracefulPeriod(gracefulPeriodFlag(v)),
				keel.WithOTLPGRPCTracer(otelEnabledFlag(v)),
				keel.WithHTTPPProfService(servicePProfEnabledFlag(v)),
			)

			l := svr.Logger()

			store, s, err := newStore(cmd.Context(), v, l.Named("inst.storage"))
			if err != nil {
				return err
			}

			sessions := session.NewManager(l.Named("inst.sessions"), store,
				session.ManagerWithTTL(sessionTTLFlag(v)),
			)

			storageHealtherFn := healthz.NewHealthzerFn(func(ctx context.Context) error {
				_, err := s.Read(ctx, annotation.StorageKey("healthz"))
				if err != nil && !isNotExist(err) {
					return err
				}
				return nil
			})
			svr.AddReadinessHealthzers(storageHealtherFn)

			svr.AddClosers(func(ctx context.Context) error {
				return s.Close()
			})

			svr.AddServices(
				service.NewGoRoutine(l.Named("go.sessions"), "sessions", func(ctx context.Context, l *zap.Logger) error {
					return sessions.Run(ctx)
				}),
				service.NewHTTP(l.Named("svc.http"), "http", addressFlag(v),
					handler.NewHTTP(l.Named("inst.handler"), store, sessions, handler.WithBasePath(basePathFlag(v))),
					middleware.Telemetry(),
					middleware.Logger(),
					middleware.GZip(middleware.GZipWithLevel(gzipLevelFlag(v))),
					middleware.Recover(),
				),
			)

			svr.Run()
			return nil
		},
	}

	flags := cmd.Flags()
	addAddressFlag(flags, v)
	addBasePathFlag(flags, v)
	addStorageFlags(flags, v)
	addSessionTTLFlag(flags, v)
	addGracefulPeriodFlag(flags, v)
	addGzipLevelFlag(flags, v)
	addOtelEnabledFlag(flags, v)
	addServiceHealthzEnabledFlag(flags, v)
	addServicePrometheusEnabledFlag(flags, v)
	addServicePProfEnabledFlag(flags, v)

	return cmd
}
