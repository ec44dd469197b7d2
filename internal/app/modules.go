package app

import (
	"github.com/vk/zerosystem/internal/registry"
	"github.com/vk/zerosystem/modules/env_vars"
	"github.com/vk/zerosystem/modules/http_client"
	"github.com/vk/zerosystem/modules/print"
)

// coreModules returns the modules compiled into the zerosys binary.
func coreModules(a *App) []registry.Module {
	return []registry.Module{
		&env_vars.Module{},
		&print.Module{Out: a.outW},
		&http_client.Module{},
	}
}
