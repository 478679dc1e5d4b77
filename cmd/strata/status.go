package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/strata/pkg/health"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe the endpoints of a node and show its raft state",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		healthAddr := dialable(v.GetString("health-addr"))
		siteAddr := dialable(v.GetString("site-addr"))

		probe := health.NewProbe().
			Add("api", health.NewTCPChecker(dialable(v.GetString("api-addr"))).WithTimeout(timeout)).
			Add("ready", health.NewHTTPChecker("http://"+healthAddr+"/ready").WithTimeout(timeout)).
			Add("site", health.NewHTTPChecker("http://"+siteAddr+"/").
				WithMethod("HEAD").
				WithStatusRange(200, 499).
				WithTimeout(timeout))

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		results := probe.Run(ctx)

		w := newTable("CHECK", "TYPE", "HEALTHY", "DURATION", "MESSAGE")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n", r.Name, r.Type, r.Healthy, r.Duration.Round(time.Millisecond), r.Message)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		c, err := newClient()
		if err == nil {
			defer c.Close()
			if info, err := c.GetClusterInfo(); err == nil {
				fmt.Printf("\nNode %s (%s), leader %s, applied %d/%d, version %s\n",
					info.NodeID, info.State, info.Leader, info.AppliedIndex, info.LastLogIndex, info.Version)
			}
		}

		if !health.Healthy(results) {
			return fmt.Errorf("node is not healthy")
		}
		return nil
	},
}

// dialable turns a wildcard listen address into one a client can reach
func dialable(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func init() {
	statusCmd.Flags().String("health-addr", "127.0.0.1:9090", "Address of the health endpoints")
	statusCmd.Flags().String("site-addr", "127.0.0.1:8080", "Address of the public site")
	statusCmd.Flags().Duration("timeout", 5*time.Second, "Timeout of each probe")

	rootCmd.AddCommand(statusCmd)
}
