package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/edusync/idnsync/pkg/cipher"
	"github.com/edusync/idnsync/pkg/config"
	"github.com/edusync/idnsync/pkg/directory"
	"github.com/edusync/idnsync/pkg/fanout"
	"github.com/edusync/idnsync/pkg/health"
	"github.com/edusync/idnsync/pkg/log"
	"github.com/edusync/idnsync/pkg/metrics"
	"github.com/edusync/idnsync/pkg/scheduler"
	"github.com/edusync/idnsync/pkg/source"
	"github.com/edusync/idnsync/pkg/state"
	"github.com/edusync/idnsync/pkg/types"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the event-log synchronization daemon",
	Long: `Run the synchronization daemon: visit every configured tenant
database in a round-robin, apply pending events to the directory, drain
the cross-tenant fan-out queue, and touch the liveness file once per
round. The ops listener serves /healthz, /livez and /metrics.

On a fatal error the daemon holds instead of exiting, so the liveness
file goes stale and monitoring notices; set TERMINATE=true to exit
immediately instead.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := setupConfig(cmd, config.Load)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runDaemon(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		return holdOnFailure(ctx, cfg, err)
	}
	log.Info("sync stopped")
	return nil
}

func runDaemon(ctx context.Context, cfg *config.Config) error {
	tenants, err := cfg.Tenants()
	if err != nil {
		return err
	}

	cip, err := cipher.NewFromPassword(cfg.Sync.EncryptPassword)
	if err != nil {
		return fmt.Errorf("password cipher: %w", err)
	}

	client, err := directory.Connect(ctx, directory.Config{
		URI:      cfg.LDAP.URI,
		BindDN:   cfg.LDAP.BindDN,
		Password: cfg.LDAP.Password,
	})
	if err != nil {
		return fmt.Errorf("directory connect: %w", err)
	}
	defer client.Close()

	var store *state.Store
	if cfg.Sync.StateFile != "" {
		store, err = state.Open(cfg.Sync.StateFile)
		if err != nil {
			return fmt.Errorf("state store: %w", err)
		}
		defer store.Close()
	}

	queue := fanout.NewQueue()
	sched := scheduler.New(scheduler.Config{
		Tenants:    tenants,
		Directory:  client,
		Cipher:     cip,
		OpenSource: openTenantSource,
		Queue:      queue,
		State:      store,
		Marker:     health.NewMarker(cfg.Sync.LivenessFile),
		Rebind:     client.Rebind,
		RootDN:     cfg.LDAP.BaseDN,
		SharedBase: cfg.SharedBaseDN(),
		MaxRecords: cfg.Sync.MaxRecords,
		Sleep:      cfg.SleepInterval(),
		FixedIV:    cfg.FixedIVBytes(),
	})

	ops := opsServer(cfg)

	collector := metrics.NewCollector(queue, cfg.Sync.LivenessFile)
	collector.Start()
	defer collector.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		return ops.Start(cfg.Ops.Listen)
	})
	g.Go(func() error {
		<-gctx.Done()
		shctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ops.Shutdown(shctx)
	})
	return g.Wait()
}

func openTenantSource(ctx context.Context, tenant types.Tenant) (source.Gateway, error) {
	return source.Open(ctx, tenant.DSN, tenant.Database)
}

// opsServer wires the checkers that make sense for the daemon: liveness
// file freshness and directory reachability.
func opsServer(cfg *config.Config) *health.Server {
	maxAge := 3 * cfg.SleepInterval()
	if maxAge < time.Minute {
		maxAge = time.Minute
	}
	checkers := []health.Checker{
		health.NewFileChecker(cfg.Sync.LivenessFile, maxAge),
	}
	if addr := ldapAddr(cfg.LDAP.URI); addr != "" {
		checkers = append(checkers, health.NewTCPChecker("ldap", addr))
	}
	return health.NewServer(Version, checkers...)
}

// ldapAddr extracts host:port from the directory URI for the TCP
// checker, filling in the scheme's default port.
func ldapAddr(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Port() != "" {
		return u.Host
	}
	port := "389"
	if u.Scheme == "ldaps" {
		port = "636"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// holdOnFailure keeps a failed daemon alive until it is killed, so the
// liveness file goes stale and monitoring raises the alarm instead of
// the supervisor restarting it straight into the same failure.
func holdOnFailure(ctx context.Context, cfg *config.Config, err error) error {
	if cfg.Sync.Terminate {
		return err
	}
	log.Logger.Error().Err(err).Msg("sync failed, holding until killed")
	<-ctx.Done()
	return err
}
