package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/strata/pkg/content"
	"github.com/cuemby/strata/pkg/editor"
	"github.com/cuemby/strata/pkg/types"
)

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Edit contents and manage drafts",
}

var contentGetCmd = &cobra.Command{
	Use:   "get TYPE UID",
	Short: "Show a content as the session user sees it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		sc, err := c.GetContent(args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(sc)
	},
}

var contentUpdateCmd = &cobra.Command{
	Use:   "update -f FILE",
	Short: "Apply serialized contents to the drafts of the session user",
	Long: `Apply serialized contents to the drafts of the session user.

FILE holds one serialized content or a JSON array of them, "-" reads stdin:

  echo '{"uid":"t1","type":"Element/Text","value":"Hello"}' | strata content update -f -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		contents, err := readSerialized(file)
		if err != nil {
			return err
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.UpdateContents(contents); err != nil {
			return fmt.Errorf("failed to update: %v", err)
		}
		fmt.Printf("✓ %d content(s) updated\n", len(contents))
		return nil
	},
}

func readSerialized(file string) ([]*types.SerializedContent, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %v", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var contents []*types.SerializedContent
		if err := json.Unmarshal(data, &contents); err != nil {
			return nil, fmt.Errorf("failed to parse contents: %v", err)
		}
		return contents, nil
	}
	var sc types.SerializedContent
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse content: %v", err)
	}
	return []*types.SerializedContent{&sc}, nil
}

var contentCommitCmd = &cobra.Command{
	Use:   "commit UID",
	Short: "Publish the draft of a content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		comment, _ := cmd.Flags().GetString("message")

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		committed, err := c.Commit(args[0], comment)
		if err != nil {
			return fmt.Errorf("failed to commit: %v", err)
		}
		fmt.Printf("✓ %s committed at revision %d\n", committed.UID, committed.Revision)
		return nil
	},
}

var contentCommitAllCmd = &cobra.Command{
	Use:   "commit-all",
	Short: "Publish every draft of the session user",
	RunE: func(cmd *cobra.Command, args []string) error {
		comment, _ := cmd.Flags().GetString("message")

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		report, err := c.CommitAll(comment)
		if err != nil {
			return fmt.Errorf("failed to commit: %v", err)
		}
		fmt.Printf("✓ %d draft(s) committed\n", len(report.Committed))
		for _, s := range report.Skipped {
			fmt.Printf("  skipped %s: %s\n", s.ContentUID, s.Reason)
		}
		return nil
	},
}

var contentRevertCmd = &cobra.Command{
	Use:   "revert UID",
	Short: "Drop the draft of a content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Revert(args[0]); err != nil {
			return fmt.Errorf("failed to revert: %v", err)
		}
		fmt.Printf("✓ Draft of %s reverted\n", args[0])
		return nil
	},
}

var contentRebaseCmd = &cobra.Command{
	Use:   "rebase UID",
	Short: "Move a draft onto the current committed revision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		d, err := c.Rebase(args[0])
		if err != nil {
			return fmt.Errorf("failed to rebase: %v", err)
		}
		printDraftOutcome(d)
		return nil
	},
}

var contentResolveCmd = &cobra.Command{
	Use:   "resolve UID KEY=mine|theirs...",
	Short: "Settle the conflicts of a draft",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		choices := make(map[string]content.Choice, len(args)-1)
		for _, arg := range args[1:] {
			key, choice, ok := strings.Cut(arg, "=")
			if !ok {
				return fmt.Errorf("invalid choice %q, expected KEY=mine or KEY=theirs", arg)
			}
			choices[key] = content.Choice(choice)
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		d, err := c.Resolve(args[0], choices)
		if err != nil {
			return fmt.Errorf("failed to resolve: %v", err)
		}
		printDraftOutcome(d)
		return nil
	},
}

func printDraftOutcome(d *types.Revision) {
	if len(d.Conflicts) == 0 {
		fmt.Printf("✓ Draft of %s is based on revision %d\n", d.ContentUID, d.Revision)
		return
	}
	fmt.Printf("⚠ Draft of %s has conflicts on: %s\n", d.ContentUID, strings.Join(d.Conflicts, ", "))
}

var contentDraftsCmd = &cobra.Command{
	Use:   "drafts",
	Short: "List the drafts of the session user",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		drafts, err := c.ListDrafts()
		if err != nil {
			return err
		}
		w := newTable("CONTENT", "TYPE", "STATE", "BASE", "MODIFIED")
		for _, d := range drafts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", d.ContentUID, d.ContentType, d.State, d.Revision, formatTime(&d.ModifiedAt))
		}
		return w.Flush()
	},
}

var contentHistoryCmd = &cobra.Command{
	Use:   "history UID",
	Short: "List the committed revisions of a content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		revisions, err := c.GetHistory(args[0])
		if err != nil {
			return err
		}
		w := newTable("REVISION", "AUTHOR", "DATE", "COMMENT")
		for _, r := range revisions {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.Revision, r.Owner, formatTime(&r.ModifiedAt), r.Comment)
		}
		return w.Flush()
	},
}

var contentDiffCmd = &cobra.Command{
	Use:   "diff UID",
	Short: "Compare two revisions of a content",
	Long: `Compare two revisions of a content. --to defaults to the draft of
the session user (-1); revision 0 is the default payload of the type.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetInt("from")
		to, _ := cmd.Flags().GetInt("to")

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		changes, err := c.GetDiff(args[0], from, to)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			fmt.Println("No changes")
			return nil
		}
		for _, ch := range changes {
			fmt.Printf("%s:\n", ch.Key)
			if ch.Patch != "" {
				fmt.Println(ch.Patch)
				continue
			}
			fmt.Printf("  - %v\n  + %v\n", ch.Old, ch.New)
		}
		return nil
	},
}

var contentDeleteCmd = &cobra.Command{
	Use:   "delete UID",
	Short: "Delete a content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.DeleteContent(args[0]); err != nil {
			return fmt.Errorf("failed to delete: %v", err)
		}
		fmt.Printf("✓ Content deleted: %s\n", args[0])
		return nil
	},
}

var contentParamsCmd = &cobra.Command{
	Use:   "params TYPE UID",
	Short: "Show the params of a content",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		params, err := c.GetParameters(args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(params)
	},
}

var contentCategoryCmd = &cobra.Command{
	Use:   "category [NAME]",
	Short: "List content types, optionally of one category",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category := content.CategoryAll
		if len(args) == 1 {
			category = args[0]
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.ListContentTypes(category)
		if err != nil {
			return err
		}
		w := newTable("NAME", "CATEGORY", "LABEL", "SET")
		for _, ct := range resp.Types {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", ct.Name, ct.Category, ct.Label, ct.Set)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\nCategories: %s\n", strings.Join(resp.Categories, ", "))
		return nil
	},
}

func init() {
	contentCmd.AddCommand(contentGetCmd)
	contentCmd.AddCommand(contentUpdateCmd)
	contentCmd.AddCommand(contentCommitCmd)
	contentCmd.AddCommand(contentCommitAllCmd)
	contentCmd.AddCommand(contentRevertCmd)
	contentCmd.AddCommand(contentRebaseCmd)
	contentCmd.AddCommand(contentResolveCmd)
	contentCmd.AddCommand(contentDraftsCmd)
	contentCmd.AddCommand(contentHistoryCmd)
	contentCmd.AddCommand(contentDiffCmd)
	contentCmd.AddCommand(contentDeleteCmd)
	contentCmd.AddCommand(contentParamsCmd)
	contentCmd.AddCommand(contentCategoryCmd)

	contentUpdateCmd.Flags().StringP("file", "f", "", "JSON file of serialized contents, - for stdin")
	_ = contentUpdateCmd.MarkFlagRequired("file")
	contentCommitCmd.Flags().StringP("message", "m", "", "Commit comment")
	contentCommitAllCmd.Flags().StringP("message", "m", "", "Commit comment")
	contentDiffCmd.Flags().Int("from", 0, "Base revision")
	contentDiffCmd.Flags().Int("to", editor.DraftRevision, "Target revision, -1 for the draft")

	rootCmd.AddCommand(contentCmd)
}
