package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage editing sessions",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue USER",
	Short: "Issue a session token for an editor",
	Long: `Issue a session token for an editor. Run it on the node: without
--token the command goes through the local socket, which any user able to
read the data directory may use.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.IssueToken(args[0], role, ttl)
		if err != nil {
			return fmt.Errorf("failed to issue token: %v", err)
		}

		fmt.Printf("✓ Session issued for %s (%s), expires %s\n", resp.User, resp.Role, formatTime(&resp.ExpiresAt))
		fmt.Println(resp.Token)
		return nil
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke [TOKEN]",
	Short: "Revoke a session token, or every session of --user",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		if (len(args) == 0) == (user == "") {
			return fmt.Errorf("give either a token or --user")
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		var n int
		if user != "" {
			n, err = c.RevokeUser(user)
		} else {
			n, err = c.RevokeToken(args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to revoke: %v", err)
		}
		fmt.Printf("✓ %d session(s) revoked\n", n)
		return nil
	},
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		sessions, err := c.ListSessions()
		if err != nil {
			return err
		}
		w := newTable("USER", "ROLE", "CREATED", "EXPIRES")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.User, s.Role, formatTime(&s.CreatedAt), formatTime(&s.ExpiresAt))
		}
		return w.Flush()
	},
}

func init() {
	tokenCmd.AddCommand(tokenIssueCmd)
	tokenCmd.AddCommand(tokenRevokeCmd)
	tokenCmd.AddCommand(tokenListCmd)

	tokenIssueCmd.Flags().String("role", "editor", "Session role (editor, admin)")
	tokenIssueCmd.Flags().Duration("ttl", 12*time.Hour, "Session lifetime")
	tokenRevokeCmd.Flags().String("user", "", "Revoke every session of this user")

	rootCmd.AddCommand(tokenCmd)
}
