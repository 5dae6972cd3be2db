package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

func handleConfigCommand(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: bandit config <command>")
		fmt.Println("Commands: show, init")
		os.Exit(1)
	}

	switch args[0] {
	case "show":
		showConfig()
	case "init":
		initConfig()
	default:
		fmt.Printf("Unknown config command: %s\n", args[0])
		os.Exit(1)
	}
}

func showConfig() {
	if outputCfg.JSON {
		PrintResult(cfg)
		return
	}

	// Pretty print as YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		PrintError("Error: failed to marshal config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("# Active Configuration")
	fmt.Println(string(data))
	fmt.Println("# State file:", cfg.GetStatePath())
	fmt.Println("# Catalog cache:", cfg.GetCacheDBPath())
}

func initConfig() {
	configPath := ".bandit.yaml"

	if _, err := os.Stat(configPath); err == nil {
		PrintError("Error: config file already exists at %s\n", configPath)
		os.Exit(1)
	}

	example := `# Bandit Configuration
# Catalog service base URL
server_url: ` + cfg.GetServerURL() + `

# Application data directory (state file, catalog cache)
#data_dir: ~/.local/share/bandit

# Default parent directory for new installs
#games_dir: ~/Games

# Compatibility layer for Windows titles
compat:
  command: umu-run
  #prefix_dir: ~/.local/share/bandit/compat/prefix

logging:
  level: info   # debug, info, warn, error
  format: text  # text or json
`

	if err := os.WriteFile(configPath, []byte(example), 0o644); err != nil {
		PrintError("Error: failed to write config: %v\n", err)
		os.Exit(1)
	}

	if outputCfg.JSON {
		PrintResult(map[string]string{"path": configPath, "status": "created"})
	} else {
		PrintInfo("Created config file: %s\n", configPath)
	}
}
