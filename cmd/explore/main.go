package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/wippyai/dynbridge/engine"
	"github.com/wippyai/dynbridge/guest"
	"github.com/wippyai/dynbridge/registry"

	// Demo domain so a bare invocation has something to explore.
	_ "github.com/wippyai/dynbridge/testbed"
)

// config is the optional explore.toml file.
type config struct {
	LogLevel         string `toml:"log_level"`
	ShowCombinations bool   `toml:"show_combinations"`
}

func defaultConfig() config {
	return config{LogLevel: "warn", ShowCombinations: true}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		if _, err := os.Stat("explore.toml"); err != nil {
			return cfg, nil
		}
		path = "explore.toml"
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	return cfg, nil
}

func setupLogging(level string) error {
	var logger *zap.Logger
	var err error
	switch level {
	case "debug":
		logger, err = zap.NewDevelopment()
	case "info", "warn", "error":
		zcfg := zap.NewProductionConfig()
		if lvl, perr := zap.ParseAtomicLevel(level); perr == nil {
			zcfg.Level = lvl
		}
		logger, err = zcfg.Build()
	case "", "off":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	if err != nil {
		return err
	}
	registry.SetLogger(logger.Named("registry"))
	guest.SetLogger(logger.Named("guest"))
	engine.SetLogger(logger.Named("engine"))
	return nil
}

func main() {
	var (
		configPath  = flag.String("config", "", "Path to explore.toml")
		list        = flag.Bool("list", false, "Print registered types and exit")
		interactive = flag.Bool("i", true, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := setupLogging(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *list || !*interactive {
		if err := printTypes(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runInteractive(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printTypes(cfg config) error {
	reg := registry.Default()
	types := reg.Types()
	sort.Slice(types, func(i, j int) bool { return types[i].Name() < types[j].Name() })

	fmt.Printf("Registered types: %d\n\n", len(types))
	for _, t := range types {
		var traits []string
		for _, tr := range t.Traits() {
			traits = append(traits, tr.Name())
		}
		fmt.Printf("  %s [%s]", t.Name(), t.Markers())
		if len(traits) > 0 {
			fmt.Printf(" traits: %s", strings.Join(traits, ", "))
		}
		fmt.Println()

		if !cfg.ShowCombinations {
			continue
		}
		entries := reg.Entries(t.GoType())
		keys := make([]string, 0, len(entries))
		for _, e := range entries {
			keys = append(keys, e.Caps.Key())
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("    - %s\n", k)
		}
	}
	return nil
}
