package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/swissMack/pve1-sub007/carrier"
	"github.com/swissMack/pve1-sub007/oauth2client"
)

const maxQueryBodyBytes = 1 << 20

// Querier runs analytics queries. *Client implements it.
type Querier interface {
	Query(ctx context.Context, q Query) (*Result, error)
}

// Response is the JSON envelope of every API answer.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Field   string `json:"field,omitempty"`
}

// Handler serves the analytics and carrier endpoints.
type Handler struct {
	querier  Querier
	carriers CarrierResolver
	logger   Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets a logger for failed queries.
func WithHandlerLogger(logger Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a Handler. carriers may be nil, in which case the carrier
// endpoint answers with generic values.
func NewHandler(querier Querier, carriers CarrierResolver, opts ...HandlerOption) *Handler {
	h := &Handler{
		querier:  querier,
		carriers: carriers,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the API routes on r.
func (h *Handler) Register(r *mux.Router) {
	// Flat routes: a subrouter answers a wrong method with 404 instead of 405.
	r.HandleFunc("/api/analytics/query", h.handleQuery).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/api/carriers/{mccmnc}", h.handleCarrier).Methods(http.MethodGet)
}

// NewRouter returns a router with the API routes, /healthz and, when metrics
// is non-nil, /metrics.
func NewRouter(h *Handler, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	h.Register(r)
	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	SendJSONResponse(w, http.StatusOK, Response{Success: true, Message: "ok"})
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromRequest(r)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	result, err := h.querier.Query(r.Context(), q)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	SendJSONResponse(w, http.StatusOK, Response{Success: true, Data: result})
}

func (h *Handler) handleCarrier(w http.ResponseWriter, r *http.Request) {
	mccmnc := mux.Vars(r)["mccmnc"]

	info := carrier.Generic(strings.TrimSpace(mccmnc))
	if h.carriers != nil {
		info = h.carriers.Lookup(r.Context(), mccmnc)
	}

	SendJSONResponse(w, http.StatusOK, Response{Success: true, Data: info})
}

// queryFromRequest reads a Query from the JSON body of a POST or the URL
// parameters of a GET (period, customerId, repeated or comma-separated imsi).
func queryFromRequest(r *http.Request) (Query, error) {
	if r.Method == http.MethodPost {
		var q Query
		dec := json.NewDecoder(io.LimitReader(r.Body, maxQueryBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&q); err != nil {
			return Query{}, &ValidationError{Field: "body", Reason: "expected a JSON query object"}
		}
		return q, nil
	}

	params := r.URL.Query()
	q := Query{
		Period:     params.Get("period"),
		CustomerID: params.Get("customerId"),
	}
	for _, key := range []string{"imsi", "imsis"} {
		for _, v := range params[key] {
			q.IMSIs = append(q.IMSIs, strings.Split(v, ",")...)
		}
	}
	return q, nil
}

// StatusFor maps an error from Querier.Query to the HTTP status returned to the caller.
func StatusFor(err error) int {
	var validationErr *ValidationError
	var exchangeErr *oauth2client.AuthExchangeError
	var upstreamErr *UpstreamError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, oauth2client.ErrAuthRejected):
		return http.StatusUnauthorized
	case errors.As(err, &exchangeErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &upstreamErr):
		if upstreamErr.Unavailable() {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	resp := Response{Success: false, Message: http.StatusText(status)}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		resp.Error = validationErr.Error()
		resp.Field = validationErr.Field
	} else {
		// Upstream details stay in the log.
		resp.Error = publicMessage(status)
		if h.logger != nil {
			h.logger.Printf("analytics: %s %s failed with %d: %v", r.Method, r.URL.Path, status, err)
		}
	}

	SendJSONResponse(w, status, resp)
}

func publicMessage(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "analytics service rejected the proxy credentials"
	case http.StatusServiceUnavailable:
		return "analytics service temporarily unavailable"
	case http.StatusBadGateway:
		return "analytics service returned an error"
	default:
		return "internal error"
	}
}

// SendJSONResponse writes resp as JSON with the given status.
func SendJSONResponse(w http.ResponseWriter, status int, resp any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
