// Command browsecore-trace inspects and compares the Decision Trace
// records the pipeline persists in NSDebugTraces, using spf13/cobra for
// its list/show/compare subcommands.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fetchkit/browsecore/config"
	"github.com/fetchkit/browsecore/internal/kv"
	"github.com/fetchkit/browsecore/internal/trace"
	"github.com/fetchkit/browsecore/models"
)

var (
	dbPath   string
	tenantID string
	format   string
)

func main() {
	root := &cobra.Command{
		Use:   "browsecore-trace",
		Short: "Inspect and compare persisted decision traces",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "path to the browsecore KV store (default: $BROWSECORE_DB_PATH or ./browsecore.db)")
	root.PersistentFlags().StringVar(&tenantID, "tenant", "", "tenant ID (default: $TENANT_ID_DEFAULT or 'default')")

	root.AddCommand(listCmd())
	root.AddCommand(showCmd())
	root.AddCommand(compareCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore() (*trace.Store, func(), error) {
	cfg := config.Load()
	path := dbPath
	if path == "" {
		path = cfg.Store.Path
	}
	store, err := kv.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open kv store at %s: %w", path, err)
	}
	return trace.New(store, true), func() { store.Close() }, nil
}

func tenant() models.TenantID {
	if tenantID != "" {
		return models.TenantID(tenantID)
	}
	return models.TenantID(config.Load().Tenant.DefaultID)
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persisted traces for a tenant, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			records, err := store.List(context.Background(), tenant())
			if err != nil {
				return err
			}
			for _, rec := range records {
				fmt.Println(trace.OneLine(&rec))
			}
			return nil
		},
	}
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <trace-id>",
		Short: "Show one trace in ascii, detailed, json, or html form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			rec, ok, err := store.Get(context.Background(), tenant(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("trace %s not found", args[0])
			}

			switch format {
			case "json":
				out, err := trace.JSON(rec)
				if err != nil {
					return err
				}
				fmt.Println(out)
			case "html":
				out, err := trace.HTML(rec)
				if err != nil {
					return err
				}
				fmt.Println(out)
			case "detailed":
				fmt.Println(trace.Detailed(rec))
			default:
				fmt.Println(trace.ASCII(rec))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "ascii", "output format: ascii, detailed, json, html")
	return cmd
}

func compareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <trace-id-a> <trace-id-b>",
		Short: "Diff two traces field by field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx := context.Background()
			a, ok, err := store.Get(ctx, tenant(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("trace %s not found", args[0])
			}
			b, ok, err := store.Get(ctx, tenant(), args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("trace %s not found", args[1])
			}

			diff := trace.Compare(a, b)
			if diff == "" {
				fmt.Println("no differences")
				return nil
			}
			fmt.Println(diff)
			return nil
		},
	}
}
