package capability

import (
	"io"
	"time"

	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/transport"
)

// Options configures the catalog.
type Options struct {
	// Output receives print output. When nil, print logs through the
	// instance logger under the name "console".
	Output io.Writer
	// Client serves fetch. When nil, fetch rejects every request.
	Client *transport.Client
	// Now overrides the wall clock.
	Now func() time.Time
	// RegexpTimeout bounds a single match. Zero means no bound.
	RegexpTimeout time.Duration
	// FetchTimeout bounds a single fetch including retries.
	FetchTimeout time.Duration
}

// Catalog returns the capability slots of the root namespace.
func Catalog(opts Options) imports.Namespace {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ns := make(imports.Namespace)
	for _, part := range []imports.Namespace{
		console(opts),
		clock(opts),
		numbers(),
		jsonSlots(),
		regexps(opts),
		timers(),
		fetch(opts),
	} {
		for name, s := range part {
			if _, dup := ns[name]; dup {
				panic("capability: duplicate slot " + name)
			}
			ns[name] = s
		}
	}
	return ns
}
