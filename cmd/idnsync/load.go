package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edusync/idnsync/pkg/cipher"
	"github.com/edusync/idnsync/pkg/config"
	"github.com/edusync/idnsync/pkg/directory"
	"github.com/edusync/idnsync/pkg/initload"
	"github.com/edusync/idnsync/pkg/reconciler"
	"github.com/edusync/idnsync/pkg/source"
	"github.com/edusync/idnsync/pkg/types"
)

var initialLoadCmd = &cobra.Command{
	Use:   "initial-load",
	Short: "Provision the directory tree and bulk-load every person",
	Long: `Create the tenant subtrees and load every row of the persons
view into the directory, then prune entries no source row backs. Meant
for fresh directories and for re-seeding a tenant after repair;
cross-tenant fan-out stays off while it runs.`,
	RunE: runInitialLoad,
}

func init() {
	initialLoadCmd.Flags().String("database", "", "Load only this tenant database (default: all)")
	rootCmd.AddCommand(initialLoadCmd)
}

func runInitialLoad(cmd *cobra.Command, args []string) error {
	cfg, err := setupConfig(cmd, config.Load)
	if err != nil {
		return err
	}
	only, _ := cmd.Flags().GetString("database")

	tenants, err := selectTenants(cfg, only)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	for _, tenant := range tenants {
		if err := loadTenant(ctx, cfg, cip, client, tenant); err != nil {
			return fmt.Errorf("initial load %s: %w", tenant.Database, err)
		}
		fmt.Printf("✓ %s loaded\n", tenant.Database)
	}
	return nil
}

func loadTenant(ctx context.Context, cfg *config.Config, cip *cipher.Cipher, client *directory.Client, tenant types.Tenant) error {
	src, err := source.Open(ctx, tenant.DSN, tenant.Database)
	if err != nil {
		return err
	}
	defer src.Close()

	rec := reconciler.New(reconciler.Config{
		Tenant:     tenant,
		Source:     src,
		Directory:  client,
		Cipher:     cip,
		RootDN:     cfg.LDAP.BaseDN,
		SharedBase: cfg.SharedBaseDN(),
		FixedIV:    cfg.FixedIVBytes(),
	})

	loader := initload.New(initload.Config{
		Tenant:     tenant,
		Source:     src,
		Directory:  client,
		Reconciler: rec,
	})
	return loader.Run(ctx)
}

// selectTenants resolves the --database filter against the configured
// tenant list.
func selectTenants(cfg *config.Config, only string) ([]types.Tenant, error) {
	tenants, err := cfg.Tenants()
	if err != nil {
		return nil, err
	}
	if only == "" {
		return tenants, nil
	}
	for _, t := range tenants {
		if t.Database == only {
			return []types.Tenant{t}, nil
		}
	}
	return nil, fmt.Errorf("database %q is not configured", only)
}
