package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/cuemby/strata/pkg/api"
	"github.com/cuemby/strata/pkg/client"
	"github.com/cuemby/strata/pkg/config"
	"github.com/cuemby/strata/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// v holds flags, STRATA_ variables and the config file
var v = config.New()

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata - content management with per-editor drafts",
	Long: `Strata is a content management server. Every editor works on private
drafts layered over the published contents, and commits them when ready.

A node replicates its contents through a raft log, serves the editing API
over gRPC and the public site over HTTP.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.BindFlags(v, cmd.Flags())
	},
}

func init() {
	config.LoadEnv()
	api.Version = Version
	metrics.SetVersion(Version)

	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Strata version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML config file")
	flags.String("data-dir", "./strata-data", "Data directory, also locates the local socket")
	flags.String("api-addr", "127.0.0.1:8090", "Address of the gRPC API")
	flags.String("token", "", "Session token; without one the read-only local socket is used")
	flags.String("ca-cert", "", "CA certificate of a TLS enabled API (<data-dir>/certs/ca.crt on the node)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Strata version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

func socketPath() string {
	return filepath.Join(v.GetString("data-dir"), config.SocketName)
}

// newClient connects to the TCP API when a token is known, to the local
// socket otherwise
func newClient() (*client.Client, error) {
	if token := v.GetString("token"); token != "" {
		var opts []grpc.DialOption
		if caFile := v.GetString("ca-cert"); caFile != "" {
			creds, err := client.WithCACert(caFile)
			if err != nil {
				return nil, err
			}
			opts = append(opts, creds)
		}
		return client.NewClient(v.GetString("api-addr"), token, opts...)
	}
	return client.NewLocalClient(socketPath(), "")
}
