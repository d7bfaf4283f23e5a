package app

import (
	"io"

	"github.com/vk/setupgrid/internal/registry"
	"github.com/vk/setupgrid/modules/env_vars"
	"github.com/vk/setupgrid/modules/fail"
	"github.com/vk/setupgrid/modules/http_check"
	"github.com/vk/setupgrid/modules/print"
	"github.com/vk/setupgrid/modules/s3"
	"github.com/vk/setupgrid/modules/socketio"
	"github.com/vk/setupgrid/modules/sql"
)

// CoreModules returns fresh instances of every module compiled into the
// setupgrid binary. Print handlers write to out. Modules holding connections
// must not be shared between apps.
func CoreModules(out io.Writer) []registry.Module {
	return []registry.Module{
		&env_vars.Module{},
		&print.Module{Out: out},
		&fail.Module{},
		&http_check.Module{},
		&s3.Module{},
		&socketio.Module{},
		&sql.Module{},
	}
}
