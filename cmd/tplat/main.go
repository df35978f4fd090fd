// Copyright (C) 2021 Toitware ApS.
//
// This library is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; version
// 2.1 only.
//
// This library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// The license can be found in the file `LICENSE` in the top level
// directory of this repository.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/osgi-build/tplat/commands"
	"github.com/osgi-build/tplat/config"
	"github.com/osgi-build/tplat/config/store"
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:              "tplat",
		Short:            "Resolve target platforms",
		TraverseChildren: true,
	}
)

func getTrimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func main() {
	cfgFile := getTrimmedEnv("TPLAT_CONFIG_FILE")
	localRepository := getTrimmedEnv(config.LocalRepositoryEnv)
	if localRepository != "" {
		if abs, err := filepath.Abs(localRepository); err == nil {
			localRepository = abs
		}
	}

	configStore := store.NewViper(localRepository, config.Offline())
	cobra.OnInitialize(func() {
		if cfgFile == "" {
			cfgFile, _ = config.UserConfigFile()
		}
		configStore.Init(cfgFile)
	})

	platformCmd, err := commands.Platform(commands.DefaultRunWrapper, configStore, nil)
	if err != nil {
		if e, ok := err.(commands.WithSilent); !ok || !e.Silent() {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
	rootCmd.AddCommand(platformCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
