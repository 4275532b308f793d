package observability

import (
	"net/http"
	"net/http/pprof"
)

const debugPath = "/debug/pprof/"

var debugProfiles = []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"}

// RegisterDebugHandlers adds pprof debugging routes to the provided mux
func RegisterDebugHandlers(mux *http.ServeMux) {
	mux.HandleFunc(debugPath, pprof.Index)
	mux.HandleFunc(debugPath+"cmdline", pprof.Cmdline)
	mux.HandleFunc(debugPath+"profile", pprof.Profile)
	mux.HandleFunc(debugPath+"symbol", pprof.Symbol)
	mux.HandleFunc(debugPath+"trace", pprof.Trace)
	for _, name := range debugProfiles {
		mux.Handle(debugPath+name, pprof.Handler(name))
	}
}
