package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/dreamware/hermes/internal/herrors"
	"github.com/dreamware/hermes/internal/ids"
	"github.com/dreamware/hermes/internal/target"
)

// ControlHandler is implemented by the component that owns the node's
// metadata/target state and can act on a peer's control requests.
type ControlHandler interface {
	ReserveLocal(ctx context.Context, targetID ids.TargetID, wantBytes int64) ([]target.BufferInfo, error)
	RegisterPeerTarget(id ids.TargetID, ownerNodeID uint32)
	PollTarget(id ids.TargetID) (target.Stats, error)
	Shutdown(ctx context.Context) error
}

// ControlServer exposes ControlHandler over plain JSON-over-HTTP, the same
// shape as the teacher's cmd/node "/control" endpoint (spec.md §4.7: "the
// teacher transports all inter-node calls as JSON over plain net/http").
type ControlServer struct {
	handler ControlHandler
}

// NewControlServer wraps handler for HTTP serving.
func NewControlServer(handler ControlHandler) *ControlServer {
	return &ControlServer{handler: handler}
}

// Register mounts the control endpoints on mux.
func (s *ControlServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("/control/reserve", s.handleReserve)
	mux.HandleFunc("/control/register_target", s.handleRegisterTarget)
	mux.HandleFunc("/control/poll_target", s.handlePollTarget)
	mux.HandleFunc("/control/shutdown", s.handleShutdown)
	mux.HandleFunc("/control/health", s.handleHealth)
}

// handleHealth answers unconditionally: reachability over HTTP is itself the
// signal a PeerHealthMonitor cares about (internal/health).
func (s *ControlServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type reserveRequest struct {
	TargetID  ids.TargetID
	WantBytes int64
}

type reserveResponse struct {
	Buffers []target.BufferInfo `json:"buffers,omitempty"`
	Error   string              `json:"error,omitempty"`
}

func (s *ControlServer) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	bufs, err := s.handler.ReserveLocal(r.Context(), req.TargetID, req.WantBytes)
	writeJSON(w, herrorsToHTTPStatus(err), reserveResponse{Buffers: bufs, Error: errString(err)})
}

type registerTargetRequest struct {
	TargetID    ids.TargetID
	OwnerNodeID uint32
}

func (s *ControlServer) handleRegisterTarget(w http.ResponseWriter, r *http.Request) {
	var req registerTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	s.handler.RegisterPeerTarget(req.TargetID, req.OwnerNodeID)
	w.WriteHeader(http.StatusNoContent)
}

type pollTargetRequest struct {
	TargetID ids.TargetID
}

type pollTargetResponse struct {
	Stats target.Stats `json:"stats"`
	Error string       `json:"error,omitempty"`
}

func (s *ControlServer) handlePollTarget(w http.ResponseWriter, r *http.Request) {
	var req pollTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	stats, err := s.handler.PollTarget(req.TargetID)
	writeJSON(w, herrorsToHTTPStatus(err), pollTargetResponse{Stats: stats, Error: errString(err)})
}

func (s *ControlServer) handleShutdown(w http.ResponseWriter, r *http.Request) {
	err := s.handler.Shutdown(r.Context())
	writeJSON(w, herrorsToHTTPStatus(err), reserveResponse{Error: errString(err)})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func herrorsToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	kind, ok := herrors.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case herrors.NotFound:
		return http.StatusNotFound
	case herrors.Conflict:
		return http.StatusConflict
	case herrors.NoSpace:
		return http.StatusInsufficientStorage
	case herrors.InvalidArgument:
		return http.StatusBadRequest
	case herrors.Shutdown:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ControlClient issues control-plane calls against a peer node over HTTP,
// mirroring the teacher's outbound http.NewRequestWithContext pattern in
// cmd/coordinator/main.go.
type ControlClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewControlClient constructs a client for the peer at baseURL (e.g.
// "http://10.0.0.2:8090").
func NewControlClient(httpClient *http.Client, baseURL string) *ControlClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ControlClient{httpClient: httpClient, baseURL: baseURL}
}

// ReserveRemote asks the peer to reserve wantBytes on targetID, which it
// owns locally.
func (c *ControlClient) ReserveRemote(ctx context.Context, targetID ids.TargetID, wantBytes int64) ([]target.BufferInfo, error) {
	var resp reserveResponse
	if err := c.post(ctx, "/control/reserve", reserveRequest{TargetID: targetID, WantBytes: wantBytes}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, herrors.Wrap(herrors.NoSpace, "rpc: remote reservation failed", errString2(resp.Error))
	}
	return resp.Buffers, nil
}

// RegisterTarget tells the peer that targetID is owned by ownerNodeID, so
// the peer's buffer pool records the owner and routes reservations for
// targetID to it.
func (c *ControlClient) RegisterTarget(ctx context.Context, targetID ids.TargetID, ownerNodeID uint32) error {
	return c.post(ctx, "/control/register_target", registerTargetRequest{TargetID: targetID, OwnerNodeID: ownerNodeID}, nil)
}

// PollTarget retrieves target.Stats for a target the peer hosts.
func (c *ControlClient) PollTarget(ctx context.Context, targetID ids.TargetID) (target.Stats, error) {
	var resp pollTargetResponse
	if err := c.post(ctx, "/control/poll_target", pollTargetRequest{TargetID: targetID}, &resp); err != nil {
		return target.Stats{}, err
	}
	if resp.Error != "" {
		return target.Stats{}, herrors.Wrap(herrors.NotFound, "rpc: remote poll failed", errString2(resp.Error))
	}
	return resp.Stats, nil
}

// Shutdown asks the peer to drain and stop (cmd/hermes-ctl's "stop"
// command, spec.md's CLI concretization).
func (c *ControlClient) Shutdown(ctx context.Context) error {
	return c.post(ctx, "/control/shutdown", struct{}{}, nil)
}

// Health asks the peer for a bare liveness signal, used by
// internal/health's PeerHealthMonitor.
func (c *ControlClient) Health(ctx context.Context) error {
	return c.post(ctx, "/control/health", struct{}{}, nil)
}

func (c *ControlClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return herrors.Wrap(herrors.RpcUnreachable, "rpc: control call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return herrors.New(herrors.RpcRemoteAbort, "rpc: peer returned a server error")
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errString2(s string) error {
	return &stringError{s}
}

type stringError struct{ s string }

func (e *stringError) Error() string { return e.s }
