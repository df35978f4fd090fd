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

package store

import (
	"context"

	"github.com/osgi-build/tplat/commands"
	"github.com/osgi-build/tplat/config"
	"github.com/osgi-build/tplat/pkg/tplat"
	"github.com/spf13/viper"
)

type Viper struct {
	localRepository string
	offline         bool
}

// NewViper returns a config store backed by viper.
// A non-empty localRepository and a true offline take precedence over the
// configuration file.
func NewViper(localRepository string, offline bool) *Viper {
	return &Viper{
		localRepository: localRepository,
		offline:         offline,
	}
}

const configKeyRepositories = commands.ConfigKeyRepositories
const configKeyOffline = commands.ConfigKeyOffline
const configKeyLocalRepository = commands.ConfigKeyLocalRepository
const configKeyDisableMirrors = commands.ConfigKeyDisableMirrors

func (vc *Viper) Init(cfgFile string) error {
	viper.SetConfigFile(cfgFile)
	return viper.ReadInConfig()
}

func (vc *Viper) Load(ctx context.Context) (*commands.Config, error) {
	result := commands.Config{}

	switch {
	case vc.localRepository != "":
		result.LocalRepository = vc.localRepository
	case viper.IsSet(configKeyLocalRepository):
		result.LocalRepository = viper.GetString(configKeyLocalRepository)
	default:
		p, err := config.LocalRepositoryPath()
		if err != nil {
			return nil, err
		}
		result.LocalRepository = p
	}

	result.Offline = vc.offline || viper.GetBool(configKeyOffline)
	result.DisableMirrors = viper.GetBool(configKeyDisableMirrors)

	if viper.IsSet(configKeyRepositories) {
		err := viper.UnmarshalKey(configKeyRepositories, &result.Repositories)
		if err != nil {
			return nil, err
		}
		if result.Repositories == nil {
			// Viper seems to just ignore empty lists.
			result.Repositories = tplat.RepositoryReferences{}
		}
	}

	return &result, nil
}

func (vc *Viper) Store(ctx context.Context, cfg *commands.Config) error {
	if cfg.Repositories != nil {
		viper.Set(configKeyRepositories, cfg.Repositories)
	}
	if cfg.DisableMirrors {
		viper.Set(configKeyDisableMirrors, true)
	}
	return viper.WriteConfig()
}
