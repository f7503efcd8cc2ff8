package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/restyle/changes"
	"github.com/hazyhaar/restyle/kit"
	"github.com/hazyhaar/restyle/persist"
)

// Router serves the gateway over HTTP:
//
//	POST /message       body: Message, reply: Response
//	GET  /color-scheme
//	GET  /changes
//	     /mcp           streamable MCP, when srv is not nil
func (g *Gateway) Router(srv *mcp.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(noStore)

	ep := g.endpoint("message")
	call := func(w http.ResponseWriter, req *http.Request, msg Message) {
		ctx := kit.WithTransport(req.Context(), "http")
		ctx = kit.WithRequestID(ctx, middleware.GetReqID(ctx))
		resp, err := ep(ctx, &msg)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}

	r.Post("/message", func(w http.ResponseWriter, req *http.Request) {
		var msg Message
		if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<16)).Decode(&msg); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
			return
		}
		call(w, req, msg)
	})
	r.Get("/color-scheme", func(w http.ResponseWriter, req *http.Request) {
		call(w, req, Message{Type: TypeGetColorScheme})
	})
	r.Get("/changes", func(w http.ResponseWriter, req *http.Request) {
		call(w, req, Message{Type: TypeGetChanges})
	})

	if srv != nil {
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	}
	return r
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnknownMessage), errors.Is(err, changes.ErrUnknownProperty):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNoPanel):
		status = http.StatusConflict
	case errors.Is(err, persist.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
