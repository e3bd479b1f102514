package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/evcraddock/trip-planner/internal/auth"
)

func newAPIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys in the local database",
		Long:  "Create, list, and revoke API keys directly in the server's database. Each key acts for one owner.",
	}
	cmd.AddCommand(newAPIKeyCreateCmd(), newAPIKeyListCmd(), newAPIKeyRevokeCmd())
	return cmd
}

func newAPIKeyCreateCmd() *cobra.Command {
	var owner, name, configPath string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openServerDB(configPath)
			if err != nil {
				return err
			}
			defer closeDB(database)

			raw, key, err := auth.NewAPIKeyStore(database).Create(name, owner)
			if err != nil {
				return err
			}

			if isJSON() {
				return printJSON(os.Stdout, map[string]any{"key": raw, "api_key": key})
			}
			fmt.Printf("Created key %q for %s.\n\n", key.Name, key.OwnerID)
			fmt.Printf("  %s\n\n", raw)
			fmt.Println("Store it now; it cannot be shown again.")
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner the key acts for (required)")
	cmd.Flags().StringVar(&name, "name", "cli", "label for the key")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "server YAML config file (for db_path)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newAPIKeyListCmd() *cobra.Command {
	var owner, configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openServerDB(configPath)
			if err != nil {
				return err
			}
			defer closeDB(database)

			keys, err := auth.NewAPIKeyStore(database).List(owner)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(os.Stdout, keys)
			}
			return printAPIKeyTable(os.Stdout, keys)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner whose keys to list (required)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "server YAML config file (for db_path)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newAPIKeyRevokeCmd() *cobra.Command {
	var owner, configPath string

	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid key ID: %s", args[0])
			}

			database, err := openServerDB(configPath)
			if err != nil {
				return err
			}
			defer closeDB(database)

			if err := auth.NewAPIKeyStore(database).Delete(owner, id); err != nil {
				return err
			}
			fmt.Printf("Key %d revoked.\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner of the key (required)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "server YAML config file (for db_path)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func printAPIKeyTable(out io.Writer, keys []auth.APIKey) error {
	if len(keys) == 0 {
		fmt.Fprintln(out, "No API keys.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPREFIX\tCREATED\tLAST USED")
	for _, k := range keys {
		lastUsed := "never"
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%d\t%s\t%s…\t%s\t%s\n",
			k.ID, k.Name, k.KeyPrefix, k.CreatedAt.Format("2006-01-02"), lastUsed)
	}
	return w.Flush()
}
