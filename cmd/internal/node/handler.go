package node

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Emjay-16/aqi-project/cmd/identity"
	"github.com/Emjay-16/aqi-project/cmd/internal/envelope"
)

type addNodeRequest struct {
	NodeID      string `json:"node_id"`
	NodeName    string `json:"node_name"`
	Location    string `json:"location"`
	Description string `json:"description"`
	UserID      int64  `json:"user_id"`
}

type addNodeResponse struct {
	NodeID string `json:"node_id"`
}

// Handler serves POST /add_node.
type Handler struct {
	log          *slog.Logger
	store        Store
	sanitizer    *Sanitizer
	maxBodyBytes int64
}

// NewHandler builds the node handler. maxBodyBytes<=0 uses the envelope default.
func NewHandler(log *slog.Logger, store Store, maxBodyBytes int64) (*Handler, error) {
	if store == nil {
		return nil, errors.New("node: nil store")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:          log,
		store:        store,
		sanitizer:    NewSanitizer(),
		maxBodyBytes: maxBodyBytes,
	}, nil
}

// Register wires the node route onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/add_node", h.handleAddNode)
}

func (h *Handler) handleAddNode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		envelope.MethodNotAllowed(w, http.MethodPost)
		return
	}

	var req addNodeRequest
	if err := envelope.DecodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		if envelope.IsBodyTooLarge(err) {
			envelope.Fail(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		envelope.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n, err := h.sanitizer.Prepare(Node{
		NodeID:      req.NodeID,
		UserID:      req.UserID,
		Name:        req.NodeName,
		Location:    req.Location,
		Description: req.Description,
	})
	if err != nil {
		envelope.Fail(w, http.StatusBadRequest, errorMessage(err))
		return
	}

	saved, err := h.store.Add(r.Context(), n)
	if err != nil {
		if identity.IsDomain(err) {
			h.log.Warn("node.add.reject", "node_id", n.NodeID, "err", err)
			envelope.Fail(w, http.StatusBadRequest, errorMessage(err))
			return
		}
		h.log.Error("node.add.fail", "node_id", n.NodeID, "err", err)
		envelope.Fail(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.Info("node.add.ok", "node_id", saved.NodeID, "user_id", saved.UserID)
	envelope.OK(w, "Node added successfully", addNodeResponse{NodeID: saved.NodeID})
}

func errorMessage(err error) string {
	var op identity.OpError
	switch {
	case identity.IsConflict(err):
		return "Node already exists"
	case identity.IsNotFound(err):
		return "User not found"
	case errors.As(err, &op) && op.Msg != "":
		return op.Msg
	default:
		return "invalid request"
	}
}
