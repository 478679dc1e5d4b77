package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/strata/pkg/client"
	"github.com/cuemby/strata/pkg/editor"
	"github.com/cuemby/strata/pkg/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a manifest file",
	Long: `Apply strata resources from a YAML file. A file may hold several
documents separated by ---.

Examples:
  # Create or update a page
  strata apply -f home.yaml

  # Seed contents, pages and theme settings of a site
  strata apply -f site.yaml

Supported kinds: Page, Content, ThemeVariables, Grid.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// Resource is one document of a manifest
type Resource struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   ResourceMetadata `yaml:"metadata"`
	Spec       map[string]any   `yaml:"spec"`
}

type ResourceMetadata struct {
	Name string `yaml:"name"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}
	defer f.Close()

	resources, err := decodeResources(f)
	if err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return fmt.Errorf("failed to connect: %v", err)
	}
	defer c.Close()

	for _, resource := range resources {
		if err := applyResource(c, resource); err != nil {
			return err
		}
	}
	return nil
}

func decodeResources(r io.Reader) ([]*Resource, error) {
	var resources []*Resource
	dec := yaml.NewDecoder(r)
	for {
		var resource Resource
		err := dec.Decode(&resource)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %v", err)
		}
		if resource.Kind == "" {
			continue
		}
		if resource.Spec == nil {
			resource.Spec = map[string]any{}
		}
		resources = append(resources, &resource)
	}
	return resources, nil
}

func applyResource(c *client.Client, resource *Resource) error {
	switch resource.Kind {
	case "Page":
		return applyPage(c, resource)
	case "Content":
		return applyContent(c, resource)
	case "ThemeVariables":
		return applyThemeVariables(c, resource)
	case "Grid":
		return applyGrid(c, resource)
	default:
		return fmt.Errorf("unsupported resource kind: %s", resource.Kind)
	}
}

func applyPage(c *client.Client, resource *Resource) error {
	uid := resource.Metadata.Name
	title := getString(resource.Spec, "title", "")
	if title == "" {
		return fmt.Errorf("page %s: title is required", uid)
	}
	state := types.PageOffline.
		With(types.PageOnline, getBool(resource.Spec, "online", false)).
		With(types.PageHidden, getBool(resource.Spec, "hidden", false))

	existing, err := c.GetPage(uid)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to get page: %v", err)
	}
	if err == nil && existing != nil {
		fmt.Printf("Updating page: %s\n", uid)
		page, err := c.UpdatePage(uid, editor.UpdatePageRequest{Title: &title, State: &state})
		if err != nil {
			return fmt.Errorf("failed to update page: %v", err)
		}
		fmt.Printf("✓ Page updated: %s (%s)\n", page.UID, page.URL)
		return nil
	}

	var layout types.Layout
	if err := convert(resource.Spec["layout"], &layout); err != nil {
		return fmt.Errorf("page %s: invalid layout: %v", uid, err)
	}

	fmt.Printf("Creating page: %s\n", uid)
	page, err := c.CreatePage(editor.CreatePageRequest{
		UID:       uid,
		Title:     title,
		ParentUID: getString(resource.Spec, "parent", ""),
		Layout:    layout,
		State:     state,
	})
	if err != nil {
		return fmt.Errorf("failed to create page: %v", err)
	}
	fmt.Printf("✓ Page created: %s (%s)\n", page.UID, page.URL)
	return nil
}

// applyContent stores the spec as a draft of the session user, then commits
// it when spec.commit is set
func applyContent(c *client.Client, resource *Resource) error {
	commit := getBool(resource.Spec, "commit", false)
	comment := getString(resource.Spec, "comment", "")
	delete(resource.Spec, "commit")
	delete(resource.Spec, "comment")

	var sc types.SerializedContent
	data, err := json.Marshal(resource.Spec)
	if err != nil {
		return fmt.Errorf("content %s: %v", resource.Metadata.Name, err)
	}
	if err := json.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("content %s: %v", resource.Metadata.Name, err)
	}
	if sc.UID == "" {
		sc.UID = resource.Metadata.Name
	}

	fmt.Printf("Updating content: %s\n", sc.UID)
	if err := c.UpdateContents([]*types.SerializedContent{&sc}); err != nil {
		return fmt.Errorf("failed to update content: %v", err)
	}
	if !commit {
		fmt.Printf("✓ Draft saved: %s\n", sc.UID)
		return nil
	}
	committed, err := c.Commit(sc.UID, comment)
	if err != nil {
		return fmt.Errorf("failed to commit content: %v", err)
	}
	fmt.Printf("✓ Content committed: %s (revision %d)\n", committed.UID, committed.Revision)
	return nil
}

func applyThemeVariables(c *client.Client, resource *Resource) error {
	name := resource.Metadata.Name
	values := make(map[string]string)
	if vars, ok := resource.Spec["variables"].(map[string]any); ok {
		for k, v := range vars {
			values[k] = fmt.Sprintf("%v", v)
		}
	}
	if len(values) == 0 {
		return fmt.Errorf("theme %s: variables are required", name)
	}

	fmt.Printf("Saving variables of theme: %s\n", name)
	if err := c.SaveThemeVariables(name, values); err != nil {
		return fmt.Errorf("failed to save variables: %v", err)
	}
	fmt.Printf("✓ %d variable(s) saved\n", len(values))
	return nil
}

func applyGrid(c *client.Client, resource *Resource) error {
	name := resource.Metadata.Name
	column := getInt(resource.Spec, "columnWidth", 60)
	gutter := getInt(resource.Spec, "gutterWidth", 20)

	fmt.Printf("Saving grid of theme: %s\n", name)
	resp, err := c.SaveGrid(name, column, gutter)
	if err != nil {
		return fmt.Errorf("failed to save grid: %v", err)
	}
	fmt.Printf("✓ Grid saved: %d columns\n", resp.Columns)
	return nil
}

// convert decodes a generic YAML value into out
func convert(in any, out any) error {
	if in == nil {
		return fmt.Errorf("missing value")
	}
	data, err := yaml.Marshal(in)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

// Helper functions
func getString(m map[string]any, key, defaultValue string) string {
	if v, ok := m[key]; ok && v != nil {
		return fmt.Sprintf("%v", v)
	}
	return defaultValue
}

func getInt(m map[string]any, key string, defaultValue int) int {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case int:
			return val
		case float64:
			return int(val)
		}
	}
	return defaultValue
}

func getBool(m map[string]any, key string, defaultValue bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return defaultValue
}
