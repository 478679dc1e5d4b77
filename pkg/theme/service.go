package theme

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/textutil"
	"github.com/rs/zerolog"
)

var (
	ErrThemeNotFound = errors.New("theme not found")
	ErrThemeExists   = errors.New("theme already exists")
	ErrInvalidName   = errors.New("invalid theme name")
	// ErrInvalidValue is returned for variables or grid sizes that cannot be saved
	ErrInvalidValue = errors.New("invalid theme value")
)

// SettingCurrent is the setting key holding the active theme
const SettingCurrent = "theme.current"

// File names inside a theme directory
const (
	AdminVariablesFile = "admin-variables.less"
	TemplatesDir       = "templates"
	GridImageFile      = "img/grid.png"
)

// Config locates themes on disk
type Config struct {
	// Dir holds one directory per theme
	Dir string
	// Default is the theme used when none is selected, and the model new
	// themes are copied from
	Default string
	// LessDir is the LESS directory inside a theme
	LessDir string
	// GridConstantFile is the generated grid file inside LessDir
	GridConstantFile string
	GridColumns      int
	Fonts            []string
}

// DefaultConfig returns the stock layout
func DefaultConfig() Config {
	return Config{
		Dir:              "themes",
		Default:          "default",
		LessDir:          "less",
		GridConstantFile: "grid_constant.less",
		GridColumns:      12,
	}
}

// Settings reads and writes replicated settings
type Settings interface {
	GetSetting(key string) (string, error)
	PutSetting(key, value string) error
}

// Publisher receives theme events
type Publisher interface {
	PublishEvent(event *events.Event)
}

// Service manages themes, their LESS variables and grid
type Service struct {
	cfg       Config
	settings  Settings
	publisher Publisher
	logger    zerolog.Logger
}

// NewService creates a theme service. publisher may be nil.
func NewService(cfg Config, settings Settings, publisher Publisher) *Service {
	return &Service{
		cfg:       cfg,
		settings:  settings,
		publisher: publisher,
		logger:    log.WithComponent("theme"),
	}
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || name != textutil.ToPath(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Dir returns the directory of a theme
func (s *Service) Dir(name string) string {
	return filepath.Join(s.cfg.Dir, name)
}

// TemplateDir returns the template override directory of a theme
func (s *Service) TemplateDir(name string) string {
	return filepath.Join(s.Dir(name), TemplatesDir)
}

func (s *Service) lessFile(name, file string) string {
	return filepath.Join(s.Dir(name), s.cfg.LessDir, file)
}

func (s *Service) exists(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	info, err := os.Stat(s.Dir(name))
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return fmt.Errorf("%w: %s", ErrThemeNotFound, name)
	}
	return err
}

// Themes lists installed themes
func (s *Service) Themes() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Current returns the active theme
func (s *Service) Current() string {
	if s.settings != nil {
		if name, err := s.settings.GetSetting(SettingCurrent); err == nil && name != "" {
			return name
		} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("Failed to read current theme")
		}
	}
	return s.cfg.Default
}

// Use activates a theme
func (s *Service) Use(name string) error {
	if err := s.exists(name); err != nil {
		return err
	}
	if err := s.settings.PutSetting(SettingCurrent, name); err != nil {
		return fmt.Errorf("failed to store current theme: %w", err)
	}

	s.logger.Info().Str("theme", name).Msg("Theme activated")
	s.publish(name, "activated")
	return nil
}

func (s *Service) publish(name, reason string) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishEvent(&events.Event{
		Type:     events.EventThemeChanged,
		Message:  fmt.Sprintf("theme %s %s", name, reason),
		Metadata: map[string]string{"theme": name, "reason": reason},
	})
}

// Create copies the default theme into a new theme
func (s *Service) Create(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if _, err := os.Stat(s.Dir(name)); err == nil {
		return fmt.Errorf("%w: %s", ErrThemeExists, name)
	}
	if err := s.exists(s.cfg.Default); err != nil {
		return fmt.Errorf("default theme: %w", err)
	}

	if err := copyTree(s.Dir(s.cfg.Default), s.Dir(name)); err != nil {
		os.RemoveAll(s.Dir(name))
		return fmt.Errorf("failed to create theme %s: %w", name, err)
	}

	s.logger.Info().Str("theme", name).Msg("Theme created")
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		out, err := os.Create(target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}

// writeFile replaces path through a temporary file in the same directory
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".strata-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Service) parse(path string) ([]Group, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrThemeNotFound, path)
		}
		return nil, err
	}
	defer f.Close()
	return ParseLess(f)
}

func (s *Service) resolve(name string) (string, error) {
	if name == "" {
		name = s.Current()
	}
	return name, s.exists(name)
}

// Variables returns the admin variables of a theme. An empty name selects
// the current theme.
func (s *Service) Variables(name string) ([]Group, error) {
	name, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return s.parse(s.lessFile(name, AdminVariablesFile))
}

// SaveVariables rewrites admin variables. Read-only variables are rejected.
func (s *Service) SaveVariables(name string, values map[string]string) error {
	name, err := s.resolve(name)
	if err != nil {
		return err
	}

	path := s.lessFile(name, AdminVariablesFile)
	groups, err := s.parse(path)
	if err != nil {
		return err
	}
	for key := range values {
		v, ok := lookupVariable(groups, key)
		if !ok {
			return fmt.Errorf("%w: unknown variable %q", ErrInvalidValue, key)
		}
		if !v.Editable {
			return fmt.Errorf("%w: variable %q is read-only", ErrInvalidValue, key)
		}
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := RewriteLess(bytes.NewReader(src), &out, values); err != nil {
		return err
	}
	if err := writeFile(path, out.Bytes()); err != nil {
		return fmt.Errorf("failed to save variables: %w", err)
	}

	s.publish(name, "variables")
	return nil
}

func lookupVariable(groups []Group, name string) (Variable, bool) {
	for _, g := range groups {
		for _, v := range g.Variables {
			if v.Name == name {
				return v, true
			}
		}
	}
	return Variable{}, false
}

// GridConstants returns the generated grid variables of a theme
func (s *Service) GridConstants(name string) ([]Group, error) {
	name, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return s.parse(s.lessFile(name, s.cfg.GridConstantFile))
}

// SaveGrid regenerates the grid constants file and background image
func (s *Service) SaveGrid(name string, columnWidth, gutterWidth int) (GridConstants, error) {
	name, err := s.resolve(name)
	if err != nil {
		return GridConstants{}, err
	}

	g, err := ComputeGrid(s.cfg.GridColumns, columnWidth, gutterWidth)
	if err != nil {
		return GridConstants{}, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}

	if err := writeFile(s.lessFile(name, s.cfg.GridConstantFile), []byte(g.Less())); err != nil {
		return GridConstants{}, fmt.Errorf("failed to save grid constants: %w", err)
	}

	var img bytes.Buffer
	if err := WriteGridPNG(&img, g); err != nil {
		return GridConstants{}, err
	}
	if err := writeFile(filepath.Join(s.Dir(name), filepath.FromSlash(GridImageFile)), img.Bytes()); err != nil {
		return GridConstants{}, fmt.Errorf("failed to save grid image: %w", err)
	}

	s.publish(name, "grid")
	return g, nil
}

// GridColumns returns the configured number of grid columns
func (s *Service) GridColumns() int {
	return s.cfg.GridColumns
}

// Fonts returns the fonts offered to editors
func (s *Service) Fonts() []string {
	return slices.Clone(s.cfg.Fonts)
}
