// Command blobshard is a thin CLI wrapper around a blobstore.Store: enough
// to add, fetch, remove, and inspect blobs from a shell, not a production
// service surface.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/blobshard/blobshard/internal/blobstore"
	"github.com/blobshard/blobshard/internal/config"
	"github.com/blobshard/blobshard/internal/storelog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore reads the config file and opens a Store logging under a fresh
// per-invocation correlation ID. The caller must defer both closers.
func openStore(operation string) (*blobstore.Store, *os.File, error) {
	defaults, err := getDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}

	opID := operation + "-" + uuid.New().String()
	sl, logFile, err := storelog.New(cfg.LogDir, opID)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := &storelog.Adapter{L: sl}

	store, err := blobstore.Open(cfg.Root, blobstore.Options{
		Algorithm: cfg.Algorithm,
		MaxPerDir: cfg.MaxPerDir,
		Logger:    logger,
	})
	if err != nil {
		logFile.Close()
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	return store, logFile, nil
}

var rootCmd = &cobra.Command{
	Use:   "blobshard",
	Short: "Content-addressable local blob store",
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		algorithm, _ := cmd.Flags().GetString("algorithm")

		defaults, err := getDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["root"], algorithm)
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("initializing config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Root:      %s\n", cfg.Root)
		fmt.Printf("Algorithm: %s\n", cfg.Algorithm)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := getDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Root:        %s\n", cfg.Root)
		fmt.Printf("Algorithm:   %s\n", cfg.Algorithm)
		fmt.Printf("MaxPerDir:   %d\n", cfg.MaxPerDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a blob, reading its bytes from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, logFile, err := openStore("Add")
		if err != nil {
			return err
		}
		defer logFile.Close()
		defer store.Close()

		blob, err := store.Add(os.Stdin)
		if err != nil {
			return fmt.Errorf("adding blob: %w", err)
		}
		fmt.Println(blob.ID())
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Fetch a blob by digest, writing its bytes to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, logFile, err := openStore("Get")
		if err != nil {
			return err
		}
		defer logFile.Close()
		defer store.Close()

		blob, err := store.Get(args[0])
		if err != nil {
			return fmt.Errorf("looking up blob: %w", err)
		}
		if blob == nil {
			return fmt.Errorf("no blob with digest %s", args[0])
		}

		r, err := blob.Open()
		if err != nil {
			return fmt.Errorf("opening blob: %w", err)
		}
		defer r.Close()

		if _, err := io.Copy(os.Stdout, r); err != nil {
			return fmt.Errorf("writing blob to stdout: %w", err)
		}
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Remove a blob by digest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, logFile, err := openStore("Delete")
		if err != nil {
			return err
		}
		defer logFile.Close()
		defer store.Close()

		removed, err := store.Delete(args[0])
		if err != nil {
			return fmt.Errorf("deleting blob: %w", err)
		}
		if !removed {
			fmt.Printf("no blob with digest %s\n", args[0])
			return nil
		}
		fmt.Printf("removed %s\n", args[0])
		return nil
	},
}

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Show store-wide blob and byte counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, logFile, err := openStore("Stat")
		if err != nil {
			return err
		}
		defer logFile.Close()
		defer store.Close()

		fmt.Printf("blobCount: %d\n", store.BlobCount())
		fmt.Printf("byteCount: %d\n", store.ByteCount())
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run startup reconciliation over the store and report the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Opening a Store always runs the deep scan/dedupe pass; this
		// subcommand exists to trigger it on demand and report the outcome.
		store, logFile, err := openStore("Scan")
		if err != nil {
			return err
		}
		defer logFile.Close()
		defer store.Close()

		fmt.Printf("reconciled: blobCount=%d byteCount=%d\n", store.BlobCount(), store.ByteCount())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("algorithm", "sha256", "digest algorithm (md5, sha1, sha256, blake3)")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(scanCmd)
}
