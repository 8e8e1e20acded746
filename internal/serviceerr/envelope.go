package serviceerr

import (
	"context"
	"encoding/json"
	"net/http"

	slogctx "github.com/veqryn/slog-context"
)

// Envelope is the JSON body of every failed proxy response.
type Envelope struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

func NewEnvelope(err error) Envelope {
	return Envelope{Error: true, Message: Message(err)}
}

// Respond writes err as an envelope with the status from HTTPStatus.
func Respond(ctx context.Context, w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slogctx.Error(ctx, "Request failed", "status", status, "error", err)
	} else {
		slogctx.Debug(ctx, "Request rejected", "status", status, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewEnvelope(err)); err != nil {
		slogctx.Error(ctx, "Failed to write error envelope", "error", err)
	}
}
