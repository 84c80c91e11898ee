package app

import (
	"github.com/specialistvlad/livebind/internal/registry"
	"github.com/specialistvlad/livebind/modules/clock"
	"github.com/specialistvlad/livebind/modules/console"
	"github.com/specialistvlad/livebind/modules/env_vars"
	"github.com/specialistvlad/livebind/modules/socketio"
)

// coreModules is the definitive list of all native context modules compiled
// into the livebind binary.
var coreModules = []registry.Module{
	&env_vars.Module{},
	&clock.Module{},
	&console.Module{},
	&socketio.Module{},
}
