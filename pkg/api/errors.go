package api

import (
	"errors"

	"slackdb/pkg/kverr"
	"slackdb/pkg/logger"
	"slackdb/pkg/models"
	"slackdb/pkg/router"

	"github.com/valyala/fasthttp"
)

type errorResponse struct {
	Error   string                `json:"error"`
	Kind    string                `json:"kind"`
	Results []models.DeleteResult `json:"results,omitempty"`
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind kverr.Kind) int {
	switch kind {
	case kverr.Config, kverr.Schema:
		return fasthttp.StatusBadRequest
	case kverr.NotFound:
		return fasthttp.StatusNotFound
	case kverr.Forbidden:
		return fasthttp.StatusForbidden
	case kverr.Upstream:
		return fasthttp.StatusBadGateway
	case kverr.PartialFailure:
		return fasthttp.StatusMultiStatus
	}
	return fasthttp.StatusInternalServerError
}

func writeError(ctx *fasthttp.RequestCtx, err error) {
	kind := kverr.KindOf(err)
	resp := errorResponse{Error: err.Error(), Kind: kind.String()}
	var ke *kverr.Error
	if errors.As(err, &ke) {
		resp.Results = ke.Results
	}
	status := StatusFor(kind)
	if status >= 500 {
		reqID, _ := ctx.UserValue("reqid").(string)
		logger.Error("request_failed", "reqid", reqID, "error", err)
	}
	router.WriteJSON(ctx, status, resp)
}
