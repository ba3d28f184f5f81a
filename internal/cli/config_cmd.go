// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"

	"github.com/knightcli/knight/internal/config"
	"github.com/knightcli/knight/internal/display"
)

// HandleConfig shows or scaffolds the configuration file.
func HandleConfig(args Args) int {
	console := display.New()

	path, err := config.Path()
	if err != nil {
		console.Error("%v", err)
		return 1
	}

	switch args.Subcommand {
	case "", "show":
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			console.Dim("No configuration file at %s; built-in defaults apply.", path)
			console.Dim("Run 'knight config init' to create one.")
			return 0
		}
		if err != nil {
			console.Error("%v", err)
			return 1
		}
		console.Title(path)
		console.Printf("%s", data)
		return 0

	case "init":
		if _, err := os.Stat(path); err == nil {
			console.Warn("Configuration already exists at %s.", path)
			return 1
		}
		if err := config.Save(config.Default()); err != nil {
			console.Error("%v", err)
			return 1
		}
		console.Success("Wrote %s", path)
		return 0

	default:
		console.Error("unknown config subcommand %q", args.Subcommand)
		return 1
	}
}
