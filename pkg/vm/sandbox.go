package vm

import "github.com/dop251/goja"

// hostGlobals are host-environment names a generated program must never
// see. Generated programs only touch their own bindings, the execute
// library, and the context natives; anything else resolving is a leak.
var hostGlobals = []string{
	"require",
	"module",
	"exports",
	"process",
	"global",
	"globalThis",
	"__dirname",
	"__filename",
	"Buffer",
	"setImmediate",
	"clearImmediate",
	"setTimeout",
	"setInterval",
	"clearTimeout",
	"clearInterval",
	"fetch",
	"XMLHttpRequest",
}

// applyHygiene blanks the host globals on a fresh runtime. Generated
// programs are trusted output of our own compiler, so this is scope
// hygiene rather than a security boundary; untrusted script never runs
// here.
func applyHygiene(rt *goja.Runtime) {
	for _, name := range hostGlobals {
		_ = rt.Set(name, goja.Undefined())
	}
}
