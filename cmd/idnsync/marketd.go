package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edusync/idnsync/pkg/config"
	"github.com/edusync/idnsync/pkg/directory"
	"github.com/edusync/idnsync/pkg/ldaptime"
	"github.com/edusync/idnsync/pkg/log"
	"github.com/edusync/idnsync/pkg/schema"
)

var markETDCmd = &cobra.Command{
	Use:   "mark-etd",
	Short: "Stamp etdTimestamp on deletion-marked directory entries",
	Long: `Walk the directory for entries the downstream deletion
pipeline marked with idnDeleted and copy each entry's etlTimestamp into
etdTimestamp, confirming the deletion was propagated. Entries below the
shared subtree are left alone, as are entries already stamped with the
current value.`,
	RunE: runMarkETD,
}

func init() {
	markETDCmd.Flags().String("uniqueid", "", "Stamp a single person instead of every deletion-marked entry")
	rootCmd.AddCommand(markETDCmd)
}

func runMarkETD(cmd *cobra.Command, args []string) error {
	cfg, err := setupConfig(cmd, config.LoadDirectory)
	if err != nil {
		return err
	}
	uid, _ := cmd.Flags().GetString("uniqueid")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := directory.Connect(ctx, directory.Config{
		URI:      cfg.LDAP.URI,
		BindDN:   cfg.LDAP.BindDN,
		Password: cfg.LDAP.Password,
	})
	if err != nil {
		return fmt.Errorf("directory connect: %w", err)
	}
	defer client.Close()

	filter := directory.PresenceFilter(schema.AttrIDNDeleted)
	if uid != "" {
		filter = directory.Filter(schema.AttrUniqueID, uid)
	}
	entries, err := client.Search(cfg.LDAP.BaseDN, directory.ScopeSubtree, filter,
		[]string{schema.AttrETLTimestamp, schema.AttrETDTimestamp})
	if err != nil {
		return fmt.Errorf("directory search: %w", err)
	}

	llog := log.WithComponent("mark-etd")
	marked := 0
	for i := range entries {
		e := &entries[i]
		if insideSharedTenant(e.DN, cfg.Sync.SharedDatabase) {
			continue
		}

		etl := e.Values(schema.AttrETLTimestamp)
		if len(etl) == 0 {
			llog.Warn().Str("dn", e.DN).Msg("entry has no etlTimestamp")
			continue
		}
		parsed, err := ldaptime.Parse(etl[0])
		if err != nil {
			llog.Warn().Err(err).Str("dn", e.DN).Msg("etlTimestamp not parseable")
			continue
		}
		mark := ldaptime.Format(parsed)

		if etd := e.Values(schema.AttrETDTimestamp); len(etd) > 0 && etd[0] == mark {
			continue
		}
		if err := client.Modify(e.DN, map[string][]string{
			schema.AttrETDTimestamp: {mark},
		}, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error on LDAP modify of %s: %v\n", e.DN, err)
			continue
		}
		marked++
	}

	fmt.Printf("✓ %d entries stamped\n", marked)
	return nil
}

// insideSharedTenant reports whether the DN lies below the shared
// tenant's subtree. Shared entries belong to every institution and
// never count as deleted.
func insideSharedTenant(dn, shared string) bool {
	if shared == "" {
		return false
	}
	return strings.Contains(strings.ToLower(dn), strings.ToLower("ou="+shared+","))
}
