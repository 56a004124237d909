package api

import (
	"encoding/json"
	"fmt"
	"net/url"

	"slackdb/pkg/kverr"
	"slackdb/pkg/models"
	"slackdb/pkg/router"

	"github.com/valyala/fasthttp"
)

type createKeyRequest struct {
	Phrase    string   `json:"phrase"`
	Type      string   `json:"type"`
	Modifiers []string `json:"modifiers"`
	Values    []string `json:"values"`
}

type valuesRequest struct {
	Values []string `json:"values"`
}

type deleteResponse struct {
	Results []models.DeleteResult `json:"results"`
}

func decode(ctx *fasthttp.RequestCtx, dst any) bool {
	if err := json.Unmarshal(ctx.PostBody(), dst); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func parseMetadata(typ string, mods []string) (models.Metadata, error) {
	t, err := models.ParseTag(typ)
	if err != nil || !t.IsType() {
		return models.Metadata{}, kverr.Errorf(kverr.Schema, "create", "type must be one of voting, multiple, singleFront, singleBack")
	}
	m := models.Metadata{Type: t}
	for _, s := range mods {
		mt, err := models.ParseTag(s)
		if err != nil || !mt.IsModifier() || mt == models.TagUnknown {
			return models.Metadata{}, kverr.Errorf(kverr.Schema, "create", "unknown modifier %q", s)
		}
		m.Modifiers = append(m.Modifiers, mt)
	}
	return m, nil
}

func (h *Handlers) createKey(ctx *fasthttp.RequestCtx) {
	opCtx, cancel := h.opContext()
	defer cancel()
	var req createKeyRequest
	if !decode(ctx, &req) {
		return
	}
	meta, err := parseMetadata(req.Type, req.Modifiers)
	if err != nil {
		writeError(ctx, err)
		return
	}
	key, err := h.store.Create(opCtx, router.PathParam(ctx, "server"), router.PathParam(ctx, "channel"), req.Phrase, req.Values, meta)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.Response.Header.Set("Location", keyLocation(key))
	router.WriteJSON(ctx, fasthttp.StatusCreated, key)
}

func keyLocation(key models.Key) string {
	return fmt.Sprintf("/v1/%s/channels/%s/keys/%s",
		url.PathEscape(key.Server), url.PathEscape(key.ChannelName), url.PathEscape(key.Phrase))
}

func (h *Handlers) readKey(ctx *fasthttp.RequestCtx) {
	opCtx, cancel := h.opContext()
	defer cancel()
	entry, err := h.store.Read(opCtx, router.PathParam(ctx, "server"), router.PathParam(ctx, "channel"), router.PathParam(ctx, "phrase"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, entry)
}

func (h *Handlers) updateKey(ctx *fasthttp.RequestCtx) {
	opCtx, cancel := h.opContext()
	defer cancel()
	var req valuesRequest
	if !decode(ctx, &req) {
		return
	}
	key, err := h.store.Update(opCtx, router.PathParam(ctx, "server"), router.PathParam(ctx, "channel"), router.PathParam(ctx, "phrase"), req.Values)
	if err != nil {
		writeError(ctx, err)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, key)
}

func (h *Handlers) appendValues(ctx *fasthttp.RequestCtx) {
	opCtx, cancel := h.opContext()
	defer cancel()
	var req valuesRequest
	if !decode(ctx, &req) {
		return
	}
	key, err := h.store.Append(opCtx, router.PathParam(ctx, "server"), router.PathParam(ctx, "channel"), router.PathParam(ctx, "phrase"), req.Values)
	if err != nil {
		writeError(ctx, err)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, key)
}

func (h *Handlers) deleteKey(ctx *fasthttp.RequestCtx) {
	opCtx, cancel := h.opContext()
	defer cancel()
	results, err := h.store.Delete(opCtx, router.PathParam(ctx, "server"), router.PathParam(ctx, "channel"), router.PathParam(ctx, "phrase"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, deleteResponse{Results: results})
}
