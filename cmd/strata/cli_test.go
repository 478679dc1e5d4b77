package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/config"
	"github.com/cuemby/strata/pkg/rewriting"
)

func TestSiteHosts(t *testing.T) {
	sites := siteHosts(map[string]string{
		"*":               "root-default",
		"example.com":     "root-example",
		"www.example.com": "root-www",
	})

	require.Len(t, sites, 3)
	assert.Equal(t, rewriting.Site{Host: "www.example.com", RootUID: "root-www"}, sites[0])
	assert.Equal(t, rewriting.Site{Host: "example.com", RootUID: "root-example"}, sites[1])
	assert.Equal(t, rewriting.Site{Host: "", RootUID: "root-default"}, sites[2])
}

func TestParseAssignments(t *testing.T) {
	values, err := parseAssignments([]string{"@linkColor=#ff0000", "baseFont=Arial"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"linkColor": "#ff0000", "baseFont": "Arial"}, values)

	_, err = parseAssignments([]string{"novalue"})
	assert.Error(t, err)
}

func TestDecodeResources(t *testing.T) {
	manifest := `
apiVersion: strata/v1
kind: Page
metadata:
  name: home
spec:
  title: Home
  online: true
  layout:
    name: simple
    zones:
      - name: main
        main: true
---
kind: Grid
metadata:
  name: default
spec:
  columnWidth: 70
`
	resources, err := decodeResources(strings.NewReader(manifest))
	require.NoError(t, err)
	require.Len(t, resources, 2)

	page := resources[0]
	assert.Equal(t, "Page", page.Kind)
	assert.Equal(t, "home", page.Metadata.Name)
	assert.Equal(t, "Home", getString(page.Spec, "title", ""))
	assert.True(t, getBool(page.Spec, "online", false))
	assert.False(t, getBool(page.Spec, "hidden", false))

	grid := resources[1]
	assert.Equal(t, 70, getInt(grid.Spec, "columnWidth", 60))
	assert.Equal(t, 20, getInt(grid.Spec, "gutterWidth", 20))
}

func TestConvertLayout(t *testing.T) {
	resources, err := decodeResources(strings.NewReader(`
kind: Page
spec:
  layout:
    name: two
    zones:
      - name: main
        main: true
      - name: side
        inherited: true
        maxentry: 3
`))
	require.NoError(t, err)
	require.Len(t, resources, 1)

	var layout struct {
		Name  string `yaml:"name"`
		Zones []struct {
			Name      string `yaml:"name"`
			Inherited bool   `yaml:"inherited"`
			MaxEntry  int    `yaml:"maxentry"`
		} `yaml:"zones"`
	}
	require.NoError(t, convert(resources[0].Spec["layout"], &layout))
	assert.Equal(t, "two", layout.Name)
	require.Len(t, layout.Zones, 2)
	assert.True(t, layout.Zones[1].Inherited)
	assert.Equal(t, 3, layout.Zones[1].MaxEntry)

	assert.Error(t, convert(nil, &layout))
}

func TestReadSerialized(t *testing.T) {
	dir := t.TempDir()

	single := filepath.Join(dir, "single.json")
	require.NoError(t, os.WriteFile(single, []byte(`{"uid":"t1","type":"Element/Text","value":"Hello"}`), 0o600))
	contents, err := readSerialized(single)
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, "t1", contents[0].UID)
	require.NotNil(t, contents[0].Value)
	assert.Equal(t, "Hello", *contents[0].Value)

	list := filepath.Join(dir, "list.json")
	require.NoError(t, os.WriteFile(list, []byte(` [{"uid":"a","type":"T"},{"uid":"b","type":"T"}]`), 0o600))
	contents, err = readSerialized(list)
	require.NoError(t, err)
	assert.Len(t, contents, 2)

	_, err = readSerialized(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestDialable(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8080", dialable("0.0.0.0:8080"))
	assert.Equal(t, "127.0.0.1:8080", dialable(":8080"))
	assert.Equal(t, "10.0.0.5:80", dialable("10.0.0.5:80"))
	assert.Equal(t, "localhost", dialable("localhost"))
}

func TestTLSHosts(t *testing.T) {
	cfg := &config.Config{
		Node: config.NodeConfig{APIAddr: "10.0.0.5:8090"},
		TLS:  config.TLSConfig{Hosts: []string{"localhost", "127.0.0.1"}},
	}
	assert.Equal(t, []string{"localhost", "127.0.0.1", "10.0.0.5"}, tlsHosts(cfg))
	assert.Equal(t, []string{"localhost", "127.0.0.1"}, cfg.TLS.Hosts)

	cfg.Node.APIAddr = "0.0.0.0:8090"
	assert.Equal(t, []string{"localhost", "127.0.0.1"}, tlsHosts(cfg))
	cfg.Node.APIAddr = "127.0.0.1:8090"
	assert.Equal(t, []string{"localhost", "127.0.0.1"}, tlsHosts(cfg))
}
