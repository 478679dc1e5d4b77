package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/strata/api/rpc"
)

var themeCmd = &cobra.Command{
	Use:   "theme",
	Short: "Manage themes, their variables and grid",
}

var themeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed themes",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		themes, current, err := c.ListThemes()
		if err != nil {
			return err
		}
		for _, name := range themes {
			marker := " "
			if name == current {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
		return nil
	},
}

var themeUseCmd = &cobra.Command{
	Use:   "use NAME",
	Short: "Activate a theme",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.UseTheme(args[0]); err != nil {
			return fmt.Errorf("failed to use theme: %v", err)
		}
		fmt.Printf("✓ Theme in use: %s\n", args[0])
		return nil
	},
}

var themeCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a theme from the default one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.CreateTheme(args[0]); err != nil {
			return fmt.Errorf("failed to create theme: %v", err)
		}
		fmt.Printf("✓ Theme created: %s\n", args[0])
		return nil
	},
}

var themeVarsCmd = &cobra.Command{
	Use:   "vars NAME",
	Short: "Show the variables of a theme",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		groups, err := c.GetThemeVariables(args[0])
		if err != nil {
			return err
		}
		w := newTable("GROUP", "NAME", "VALUE", "WIDGET")
		for _, g := range groups {
			for _, variable := range g.Variables {
				if !variable.Editable {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", g.Header, variable.Name, variable.Value, variable.Widget)
			}
		}
		return w.Flush()
	},
}

var themeSetVarCmd = &cobra.Command{
	Use:   "set-var NAME KEY=VALUE...",
	Short: "Change variables of a theme",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.SaveThemeVariables(args[0], values); err != nil {
			return fmt.Errorf("failed to save variables: %v", err)
		}
		fmt.Printf("✓ %d variable(s) saved in %s\n", len(values), args[0])
		return nil
	},
}

func parseAssignments(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected KEY=VALUE", arg)
		}
		values[strings.TrimPrefix(key, "@")] = value
	}
	return values, nil
}

var themeGridCmd = &cobra.Command{
	Use:   "grid NAME",
	Short: "Show the grid of a theme, or regenerate it with --column and --gutter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if !cmd.Flags().Changed("column") && !cmd.Flags().Changed("gutter") {
			resp, err := c.GetGrid(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Columns: %d\n", resp.Columns)
			for _, g := range resp.Groups {
				for _, variable := range g.Variables {
					fmt.Printf("  @%s: %s\n", variable.Name, variable.Value)
				}
			}
			return nil
		}

		column, _ := cmd.Flags().GetInt("column")
		gutter, _ := cmd.Flags().GetInt("gutter")
		resp, err := c.SaveGrid(args[0], column, gutter)
		if err != nil {
			return fmt.Errorf("failed to save grid: %v", err)
		}
		if resp.Grid != nil {
			fmt.Printf("✓ Grid saved: %d columns of %dpx (%.4f%%), gutter %dpx (%.4f%%)\n",
				resp.Columns, resp.Grid.ColumnWidth, resp.Grid.FluidColumnWidth,
				resp.Grid.GutterWidth, resp.Grid.FluidGutterWidth)
		}
		return nil
	},
}

var themeFontsCmd = &cobra.Command{
	Use:   "fonts",
	Short: "List the fonts offered to themes",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		fonts, err := c.ListFonts()
		if err != nil {
			return err
		}
		for _, f := range fonts {
			fmt.Println(f)
		}
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events [TYPE...]",
	Short: "Follow node events",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = c.WatchEvents(ctx, args, func(e *rpc.Event) error {
			fmt.Printf("%s  %-18s %s\n", formatTime(&e.Timestamp), e.Type, e.Message)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	themeCmd.AddCommand(themeListCmd)
	themeCmd.AddCommand(themeUseCmd)
	themeCmd.AddCommand(themeCreateCmd)
	themeCmd.AddCommand(themeVarsCmd)
	themeCmd.AddCommand(themeSetVarCmd)
	themeCmd.AddCommand(themeGridCmd)
	themeCmd.AddCommand(themeFontsCmd)

	themeGridCmd.Flags().Int("column", 60, "Column width in pixels")
	themeGridCmd.Flags().Int("gutter", 20, "Gutter width in pixels")

	rootCmd.AddCommand(themeCmd)
	rootCmd.AddCommand(eventsCmd)
}
