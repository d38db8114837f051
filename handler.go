package scales

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StatusHandler returns an http.Handler exposing the registry's stat tree
// (nil means the default registry). GET on any path serves the subtree
// rooted there as a JSON object; unknown paths return 404.
//
// Query parameters: "pretty" indents the JSON; "format=flat" serves one
// "path kind value" text line per leaf instead.
//
// Mount it wherever the process serves debug endpoints:
//
//	mux.Handle("/status/", http.StripPrefix("/status", scales.StatusHandler(nil)))
func StatusHandler(registry *Registry) http.Handler {
	if registry == nil {
		registry = DefaultRegistry()
	}
	h := &statusHandler{registry: registry}

	r := chi.NewRouter()
	r.Get("/", h.serve)
	r.Get("/*", h.serve)
	return r
}

type statusHandler struct {
	registry *Registry
}

func (h *statusHandler) serve(w http.ResponseWriter, req *http.Request) {
	statPath := "/" + chi.URLParam(req, "*")

	if req.URL.Query().Get("format") == "flat" {
		h.serveFlat(w, statPath)
		return
	}

	tree, err := h.registry.Tree(statPath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	var out []byte
	if _, pretty := req.URL.Query()["pretty"]; pretty {
		out, err = json.MarshalIndent(tree, "", "  ")
	} else {
		out, err = json.Marshal(tree)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(out)
	w.Write([]byte("\n"))
}

func (h *statusHandler) serveFlat(w http.ResponseWriter, statPath string) {
	entries, err := h.registry.Entries(statPath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, e := range entries {
		fmt.Fprintf(w, "%s %s %v\n", e.Path, e.Kind, e.Value())
	}
}
