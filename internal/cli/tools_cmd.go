// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/knightcli/knight/internal/display"
	"github.com/knightcli/knight/internal/llm"
	"github.com/knightcli/knight/internal/tools"
)

// HandleTools prints the registered tool catalog.
func HandleTools(args Args) int {
	console := display.New()

	cfg, err := loadConfig(args, console)
	if err != nil {
		console.Error("%v", err)
		return 1
	}
	model, err := llm.New(cfg.Models[cfg.DefaultModel])
	if err != nil {
		console.Error("%v", err)
		return 1
	}

	reg := tools.NewRegistry()
	if err := tools.RegisterBuiltins(reg, tools.Deps{
		Model:   model,
		Console: console,
		Agent:   cfg.Agent,
	}); err != nil {
		console.Error("%v", err)
		return 1
	}

	console.Title("Available tools")
	console.Printf("%s", reg.CatalogText())
	return 0
}
