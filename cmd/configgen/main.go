package main

import (
	"flag"
	"log"

	"github.com/danmuck/memdev/internal/config"
)

func defaultPath(kind string) string {
	switch kind {
	case "daemon":
		return "cmd/memdevd/config.toml"
	case "ctl":
		return "cmd/memdevctl/config.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}

func main() {
	kind := flag.String("kind", "daemon", "config kind: daemon|ctl")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing daemon config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		if *kind != "daemon" {
			log.Fatalf("validation supports kind=daemon only; memdevctl validates its own config on load")
		}
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		cfg, err := config.LoadDaemonConfig(path)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s (%d devices)", *kind, path, len(cfg.Devices))
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
