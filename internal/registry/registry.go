package registry

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/veranemoloko/retro-installer/internal/domain"
	errpkg "github.com/veranemoloko/retro-installer/internal/errors"
)

const romheavenList = "romheaven.vrdb"

// Registry maps console codes to install rules and known game sources.
type Registry struct {
	mu          sync.RWMutex
	consoles    map[string]Console
	libraryRoot string
	logger      *slog.Logger
}

// New creates a registry holding the built-in console table. Call LoadDir
// to overlay console files.
func New(libraryRoot string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		consoles:    builtinTable(),
		libraryRoot: libraryRoot,
		logger:      logger,
	}
}

func builtinTable() map[string]Console {
	table := make(map[string]Console, len(builtinConsoles))
	for _, c := range builtinConsoles {
		table[c.Code] = c.clone()
	}
	return table
}

type consoleFile struct {
	Console struct {
		Code         string      `toml:"Code"`
		Name         string      `toml:"Name"`
		Release      string      `toml:"Release"`
		Manufacturer string      `toml:"Manufacturer"`
		Formats      []string    `toml:"Formats"`
		Generation   int         `toml:"Generation"`
		Extension    string      `toml:"Extension"`
		Unpack       *UnpackRule `toml:"Unpack"`
	} `toml:"Console"`
	Emulator *Emulator         `toml:"Emulator"`
	Games    map[string]string `toml:"Games"`
}

// LoadDir rebuilds the table from the built-ins plus every *.vrdb and *.toml
// file in dir. Files that fail to parse are skipped and logged. A missing
// directory leaves only the built-ins.
func (r *Registry) LoadDir(dir string) error {
	table := builtinTable()

	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read registry dir: %w", err)
	}

	var romheaven map[string]bool
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(dir, name)

		if name == romheavenList {
			romheaven, err = readNameList(path)
			if err != nil {
				r.logger.Warn("Failed to read romheaven list", "path", path, "error", err)
			}
			continue
		}

		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".vrdb" && ext != ".toml" {
			continue
		}

		console, err := parseConsoleFile(path)
		if err != nil {
			r.logger.Warn("Skipping console file", "path", path, "error", err)
			continue
		}
		table[console.Code] = merge(table[console.Code], console)
		loaded++
	}

	for code, c := range table {
		c.Romheaven = romheaven[c.Name]
		table[code] = c
	}

	r.mu.Lock()
	r.consoles = table
	r.mu.Unlock()

	r.logger.Info("Console registry loaded", "dir", dir, "files", loaded, "consoles", len(table))
	return nil
}

func parseConsoleFile(path string) (Console, error) {
	file, err := os.Open(path)
	if err != nil {
		return Console{}, err
	}
	defer file.Close()

	var raw consoleFile
	if err := toml.NewDecoder(file).Decode(&raw); err != nil {
		return Console{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	code := strings.ToUpper(strings.TrimSpace(raw.Console.Code))
	if code == "" {
		return Console{}, fmt.Errorf("%s: missing Console.Code", filepath.Base(path))
	}

	c := Console{
		Code:         code,
		Name:         raw.Console.Name,
		Manufacturer: raw.Console.Manufacturer,
		Release:      raw.Console.Release,
		Generation:   raw.Console.Generation,
		Formats:      raw.Console.Formats,
		Extension:    strings.TrimPrefix(strings.ToLower(raw.Console.Extension), "."),
		Unpack:       raw.Console.Unpack,
		Games:        make(map[string]domain.SourceDescriptor, len(raw.Games)),
	}
	if raw.Emulator != nil {
		c.Emulator = *raw.Emulator
	}
	if c.Emulator.LaunchCommand == "" {
		c.Emulator.LaunchCommand = "{binary} {rom}"
	}
	if c.Extension == "" && len(c.Formats) > 0 {
		c.Extension = strings.TrimPrefix(strings.ToLower(c.Formats[0]), ".")
	}

	for name, uri := range raw.Games {
		if !strings.Contains(uri, "://") {
			continue
		}
		c.Games[name] = domain.SourceDescriptor(uri)
	}
	return c, nil
}

// merge overlays a console file on top of a built-in entry.
func merge(base, file Console) Console {
	if base.Code == "" {
		if file.Name == "" {
			file.Name = file.Code
		}
		return file
	}
	out := base.clone()
	if file.Name != "" {
		out.Name = file.Name
	}
	if file.Manufacturer != "" {
		out.Manufacturer = file.Manufacturer
	}
	if file.Release != "" {
		out.Release = file.Release
	}
	if file.Generation != 0 {
		out.Generation = file.Generation
	}
	if len(file.Formats) > 0 {
		out.Formats = file.Formats
	}
	if file.Extension != "" {
		out.Extension = file.Extension
	}
	if file.Unpack != nil {
		out.Unpack = file.Unpack
	}
	out.Emulator = file.Emulator
	for name, src := range file.Games {
		out.Games[name] = src
	}
	return out
}

func readNameList(path string) (map[string]bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	names := make(map[string]bool)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names[line] = true
	}
	return names, scanner.Err()
}

// Lookup returns the console registered under code.
func (r *Registry) Lookup(code string) (Console, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.consoles[strings.ToUpper(code)]
	if !ok {
		return Console{}, false
	}
	return c.clone(), true
}

// ExtensionFor returns the file extension games of code are stored with.
func (r *Registry) ExtensionFor(code string) string {
	c, ok := r.Lookup(code)
	if !ok || c.Extension == "" {
		return DefaultExtension
	}
	return c.Extension
}

// InstallRootFor returns <library>/console/<Name>/games.
func (r *Registry) InstallRootFor(code string) (string, error) {
	c, ok := r.Lookup(code)
	if !ok {
		return "", fmt.Errorf("%w: %s", errpkg.ErrConsoleNotFound, code)
	}
	return filepath.Join(r.libraryRoot, "console", c.Name, "games"), nil
}

// UnpackRuleFor returns the unpack rule for code, if it has one.
func (r *Registry) UnpackRuleFor(code string) (UnpackRule, bool) {
	c, ok := r.Lookup(code)
	if !ok || c.Unpack == nil {
		return UnpackRule{}, false
	}
	return *c.Unpack, true
}

// GameSource finds the source of a named game. Exact names win over
// case-insensitive matches.
func (r *Registry) GameSource(code, name string) (domain.SourceDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.consoles[strings.ToUpper(code)]
	if !ok {
		return "", false
	}
	if src, ok := c.Games[name]; ok {
		return src, true
	}
	for title, src := range c.Games {
		if strings.EqualFold(title, name) {
			return src, true
		}
	}
	return "", false
}

// SearchGames returns the games of code whose name contains query,
// case-insensitively, sorted by name.
func (r *Registry) SearchGames(code, query string) []GameEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.consoles[strings.ToUpper(code)]
	if !ok {
		return nil
	}

	q := strings.ToLower(query)
	var out []GameEntry
	for name, src := range c.Games {
		if strings.Contains(strings.ToLower(name), q) {
			out = append(out, GameEntry{Name: name, Source: src})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// List returns every console sorted by code.
func (r *Registry) List() []Console {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Console, 0, len(r.consoles))
	for _, c := range r.consoles {
		out = append(out, c.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
