package api

import (
	"slackdb/pkg/models"
	"slackdb/pkg/router"

	"github.com/valyala/fasthttp"
)

type addChannelRequest struct {
	Name    string `json:"name"`
	Private bool   `json:"private"`
	// Existing registers a channel that already exists instead of creating one.
	Existing bool `json:"existing"`
}

func (h *Handlers) listServers(ctx *fasthttp.RequestCtx) {
	router.WriteJSON(ctx, fasthttp.StatusOK, map[string][]string{"servers": h.store.Servers()})
}

func (h *Handlers) dumpRegistry(ctx *fasthttp.RequestCtx) {
	opCtx, cancel := h.opContext()
	defer cancel()
	reg, err := h.store.DumpRegistry(opCtx, router.PathParam(ctx, "server"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, map[string]any{"channels": reg})
}

func (h *Handlers) addChannel(ctx *fasthttp.RequestCtx) {
	opCtx, cancel := h.opContext()
	defer cancel()
	var req addChannelRequest
	if !decode(ctx, &req) {
		return
	}
	if req.Name == "" {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "name is required")
		return
	}
	server := router.PathParam(ctx, "server")
	var (
		ch     models.Channel
		err    error
		status = fasthttp.StatusCreated
	)
	if req.Existing {
		ch, err = h.store.IncludeExistingChannel(opCtx, server, req.Name)
		status = fasthttp.StatusOK
	} else {
		ch, err = h.store.RegisterChannel(opCtx, server, req.Name, req.Private)
	}
	if err != nil {
		writeError(ctx, err)
		return
	}
	router.WriteJSON(ctx, status, ch)
}

func (h *Handlers) archiveChannel(ctx *fasthttp.RequestCtx) {
	opCtx, cancel := h.opContext()
	defer cancel()
	if err := h.store.ArchiveChannel(opCtx, router.PathParam(ctx, "server"), router.PathParam(ctx, "channel")); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}
