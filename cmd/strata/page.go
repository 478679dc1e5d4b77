package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/strata/pkg/editor"
	"github.com/cuemby/strata/pkg/types"
)

var pageCmd = &cobra.Command{
	Use:   "page",
	Short: "Manage the page tree",
}

var pageCreateCmd = &cobra.Command{
	Use:   "create TITLE",
	Short: "Create a page",
	Long: `Create a page under --parent, or a new site root without one.

The layout is read from a YAML file:

  name: two-columns
  zones:
    - name: main
      main: true
    - name: side
      inherited: true`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		layoutFile, _ := cmd.Flags().GetString("layout")
		layout, err := readLayout(layoutFile)
		if err != nil {
			return err
		}

		req := editor.CreatePageRequest{Title: args[0], Layout: *layout}
		req.UID, _ = cmd.Flags().GetString("uid")
		req.ParentUID, _ = cmd.Flags().GetString("parent")
		if req.State, err = stateFromFlags(cmd, types.PageOffline); err != nil {
			return err
		}
		if req.Publishing, err = timeFlag(cmd, "publishing"); err != nil {
			return err
		}
		if req.Archiving, err = timeFlag(cmd, "archiving"); err != nil {
			return err
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		page, err := c.CreatePage(req)
		if err != nil {
			return fmt.Errorf("failed to create page: %v", err)
		}
		fmt.Printf("✓ Page created: %s (%s)\n", page.UID, page.URL)
		return nil
	},
}

func readLayout(file string) (*types.Layout, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout: %v", err)
	}
	var layout types.Layout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("failed to parse layout: %v", err)
	}
	return &layout, nil
}

// stateFromFlags applies --online and --hidden over base
func stateFromFlags(cmd *cobra.Command, base types.PageState) (types.PageState, error) {
	state := base
	for flag, bit := range map[string]types.PageState{
		"online": types.PageOnline,
		"hidden": types.PageHidden,
	} {
		if !cmd.Flags().Changed(flag) {
			continue
		}
		on, err := cmd.Flags().GetBool(flag)
		if err != nil {
			return 0, err
		}
		state = state.With(bit, on)
	}
	return state, nil
}

// timeFlag parses an RFC 3339 date flag. An unset flag is nil; "none" is
// the zero time, which clears a schedule.
func timeFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	value, _ := cmd.Flags().GetString(name)
	if value == "none" {
		return &time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s date %q: %v", name, value, err)
	}
	return &t, nil
}

func pageState(s types.PageState) string {
	var flags []string
	if s.Has(types.PageOnline) {
		flags = append(flags, "online")
	} else {
		flags = append(flags, "offline")
	}
	if s.Has(types.PageHidden) {
		flags = append(flags, "hidden")
	}
	if s.Has(types.PageDeleted) {
		flags = append(flags, "deleted")
	}
	return strings.Join(flags, ",")
}

var pageGetCmd = &cobra.Command{
	Use:   "get UID",
	Short: "Show a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		page, err := c.GetPage(args[0])
		if err != nil {
			return err
		}
		return printJSON(page)
	},
}

var pageListCmd = &cobra.Command{
	Use:   "list [PARENT]",
	Short: "List the children of a page, or the site roots",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var parent string
		if len(args) == 1 {
			parent = args[0]
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		pages, err := c.ListPages(parent)
		if err != nil {
			return err
		}
		w := newTable("UID", "TITLE", "URL", "STATE", "PUBLISHING", "ARCHIVING")
		for _, p := range pages {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				p.UID, p.Title, p.URL, pageState(p.State), formatTime(p.Publishing), formatTime(p.Archiving))
		}
		return w.Flush()
	},
}

var pageUpdateCmd = &cobra.Command{
	Use:   "update UID",
	Short: "Change the title, state, schedule or main content of a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			req editor.UpdatePageRequest
			err error
		)
		if cmd.Flags().Changed("title") {
			title, _ := cmd.Flags().GetString("title")
			req.Title = &title
		}
		if req.Publishing, err = timeFlag(cmd, "publishing"); err != nil {
			return err
		}
		if req.Archiving, err = timeFlag(cmd, "archiving"); err != nil {
			return err
		}
		if cmd.Flags().Changed("main-content") {
			ref, _ := cmd.Flags().GetString("main-content")
			typ, uid, ok := strings.Cut(ref, ":")
			if !ok {
				return fmt.Errorf("invalid --main-content %q, expected TYPE:UID", ref)
			}
			req.MainContent = &types.Ref{Type: typ, UID: uid}
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if cmd.Flags().Changed("online") || cmd.Flags().Changed("hidden") {
			current, err := c.GetPage(args[0])
			if err != nil {
				return err
			}
			state, err := stateFromFlags(cmd, current.State)
			if err != nil {
				return err
			}
			req.State = &state
		}

		page, err := c.UpdatePage(args[0], req)
		if err != nil {
			return fmt.Errorf("failed to update page: %v", err)
		}
		fmt.Printf("✓ Page updated: %s (%s)\n", page.UID, pageState(page.State))
		return nil
	},
}

var pageDeleteCmd = &cobra.Command{
	Use:   "delete UID",
	Short: "Delete a page and its subtree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.DeletePage(args[0]); err != nil {
			return fmt.Errorf("failed to delete page: %v", err)
		}
		fmt.Printf("✓ Page deleted: %s\n", args[0])
		return nil
	},
}

var pageUnlinkZoneCmd = &cobra.Command{
	Use:   "unlink-zone PAGE ZONE",
	Short: "Give a page its own copy of an inherited zone",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		res, err := c.UnlinkZone(args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to unlink zone: %v", err)
		}
		fmt.Printf("✓ Zone unlinked, new content set: %s\n", res.UID)
		return nil
	},
}

var pageLinkZoneCmd = &cobra.Command{
	Use:   "link-zone PAGE ZONE",
	Short: "Make a zone of a page inherit from its parent again",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		res, err := c.LinkZone(args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to link zone: %v", err)
		}
		fmt.Printf("✓ Zone linked to %s\n", res.UID)
		return nil
	},
}

var pageZonesCmd = &cobra.Command{
	Use:   "zones PAGE",
	Short: "Show which zones of a page are main and which are linked",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		zones, err := c.GetLinkedZones(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Main zones:   %v\n", zones.MainZones)
		fmt.Printf("Linked zones: %v\n", zones.LinkedZones)
		return nil
	},
}

func init() {
	pageCmd.AddCommand(pageCreateCmd)
	pageCmd.AddCommand(pageGetCmd)
	pageCmd.AddCommand(pageListCmd)
	pageCmd.AddCommand(pageUpdateCmd)
	pageCmd.AddCommand(pageDeleteCmd)
	pageCmd.AddCommand(pageUnlinkZoneCmd)
	pageCmd.AddCommand(pageLinkZoneCmd)
	pageCmd.AddCommand(pageZonesCmd)

	for _, cmd := range []*cobra.Command{pageCreateCmd, pageUpdateCmd} {
		cmd.Flags().Bool("online", false, "Publish the page")
		cmd.Flags().Bool("hidden", false, "Hide the page from menus")
		cmd.Flags().String("publishing", "", "Publishing date (RFC 3339, none to clear)")
		cmd.Flags().String("archiving", "", "Archiving date (RFC 3339, none to clear)")
	}
	pageCreateCmd.Flags().String("uid", "", "Page UID (generated when empty)")
	pageCreateCmd.Flags().String("parent", "", "Parent page UID")
	pageCreateCmd.Flags().String("layout", "", "YAML layout file (required)")
	_ = pageCreateCmd.MarkFlagRequired("layout")
	pageUpdateCmd.Flags().String("title", "", "New title")
	pageUpdateCmd.Flags().String("main-content", "", "Main content as TYPE:UID")

	rootCmd.AddCommand(pageCmd)
}
