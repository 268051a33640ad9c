package app

import (
	"github.com/specialistvlad/biolockgo/internal/registry"
	"github.com/specialistvlad/biolockgo/modules/classifier"
	"github.com/specialistvlad/biolockgo/modules/counts"
	"github.com/specialistvlad/biolockgo/modules/email"
	"github.com/specialistvlad/biolockgo/modules/importmetadata"
	"github.com/specialistvlad/biolockgo/modules/report"
	"github.com/specialistvlad/biolockgo/modules/seqprep"
	"github.com/specialistvlad/biolockgo/modules/stats"
	"github.com/specialistvlad/biolockgo/modules/upload"
)

// coreModules is the definitive list of all stage modules that are compiled
// into the biolockgo binary.
var coreModules = []registry.Module{
	&importmetadata.Module{},
	&seqprep.Module{},
	&classifier.Module{},
	&counts.Module{},
	&stats.Module{},
	&report.Module{},
	&upload.Module{},
	&email.Module{},
}

// CoreModules returns the built-in modules, for callers that register
// extra stages next to them.
func CoreModules() []registry.Module {
	return append([]registry.Module(nil), coreModules...)
}
