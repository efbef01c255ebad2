package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/izavyalov-dev/diffbase/internal/observability"
	"github.com/izavyalov-dev/diffbase/protocol"
)

// Resolver is the set of operations exposed over HTTP.
type Resolver interface {
	ResolveGolden(ctx context.Context) (protocol.DiffBase, error)
	ResolveSnapshot(ctx context.Context) (protocol.DiffBase, error)
	ResolveMaster(ctx context.Context) (protocol.DiffBase, error)
	Resolve(ctx context.Context, raw string) (protocol.DiffBase, error)
}

// ResolveRequest is the body of POST /api/v1/resolve.
type ResolveRequest struct {
	Operation string `json:"operation"`
	Base      string `json:"base,omitempty"`
}

var errUnknownOperation = errors.New("unknown operation")

// Dispatch runs the named operation. base is only used by OperationRef.
func Dispatch(ctx context.Context, r Resolver, operation, base string) (protocol.DiffBase, error) {
	switch operation {
	case OperationGolden:
		return r.ResolveGolden(ctx)
	case OperationSnapshot:
		return r.ResolveSnapshot(ctx)
	case OperationMaster:
		return r.ResolveMaster(ctx)
	case OperationRef:
		return r.Resolve(ctx, base)
	default:
		return protocol.DiffBase{}, fmt.Errorf("%w %q", errUnknownOperation, operation)
	}
}

// NewHTTPHandler exposes resolution, metrics and health endpoints. sink may be nil.
// Services behind it should use a ManifestOnly file system so callers cannot
// test for arbitrary paths on the host.
func NewHTTPHandler(svc Resolver, sink Sink, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = observability.NewLogger("resolver.http")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler(gatherer))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/api/v1/resolve", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req ResolveRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		base, err := Dispatch(r.Context(), svc, req.Operation, req.Base)
		if err != nil {
			switch {
			case errors.Is(err, errUnknownOperation), errors.Is(err, ErrEmptySpecifier):
				writeError(w, http.StatusBadRequest, err)
			case errors.Is(err, ErrUnknownRevision):
				writeError(w, http.StatusUnprocessableEntity, err)
			default:
				logger.Error("resolve failed", "event", "resolve_failed", "operation", req.Operation, "error", err)
				writeError(w, http.StatusInternalServerError, err)
			}
			return
		}
		if sink != nil {
			if err := sink.Record(r.Context(), req.Operation, base); err != nil {
				logger.Warn("record diff base failed", "event", "record_failed", "operation", req.Operation, "error", err)
			}
		}
		writeJSON(w, http.StatusOK, base)
	})

	return mux
}

func decodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
