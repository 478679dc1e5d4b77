// Command strata-migrate maintains the bolt database of a stopped strata
// node: it backs the database up and rebuilds the secondary indexes
// (revisions by content, pages by url) from the primary buckets.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cuemby/strata/pkg/storage"
)

const dbFile = "strata.db"

var rootCmd = &cobra.Command{
	Use:          "strata-migrate",
	Short:        "Back up and reindex the database of a stopped strata node",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().String("data-dir", "./strata-data", "Strata data directory")
	rootCmd.Flags().Bool("dry-run", false, "Show what would be rebuilt without making changes")
	rootCmd.Flags().String("backup", "", "Path to backup the database before migration (default: <data-dir>/strata.db.backup)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	backupPath, _ := cmd.Flags().GetString("backup")

	fmt.Println("Strata Database Migration Tool - Index rebuild")
	fmt.Println("==============================================")

	dbPath := filepath.Join(dataDir, dbFile)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database not found at %s", dbPath)
	}
	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("Dry run: %v\n", dryRun)

	// Fails while a node holds the file lock
	store, err := storage.OpenBoltStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database (is the node stopped?): %v", err)
	}
	defer store.Close()

	// Create backup unless in dry-run mode
	if !dryRun {
		if backupPath == "" {
			backupPath = dbPath + ".backup"
		}
		fmt.Printf("Creating backup: %s\n", backupPath)
		n, err := backup(store, backupPath)
		if err != nil {
			return fmt.Errorf("failed to create backup: %v", err)
		}
		fmt.Printf("✓ Backup created (%d bytes)\n", n)
	}

	stats, err := store.RebuildIndexes(dryRun)
	if err != nil {
		return fmt.Errorf("migration failed: %v", err)
	}

	if dryRun {
		fmt.Println("\n[DRY RUN] Would rebuild:")
		fmt.Printf("  %d revision index entries\n", stats.Revisions)
		fmt.Printf("  %d page url index entries\n", stats.Pages)
		fmt.Println("Run without --dry-run to perform the migration.")
		return nil
	}
	fmt.Printf("\n✓ Indexes rebuilt: %d revisions, %d pages\n", stats.Revisions, stats.Pages)
	fmt.Printf("The backup at %s can be removed once the node starts cleanly.\n", backupPath)
	return nil
}

func backup(store *storage.BoltStore, path string) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := store.Backup(f)
	if err != nil {
		f.Close()
		return 0, err
	}
	return n, f.Close()
}
