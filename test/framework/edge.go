package framework

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/cravepos/brigade/pkg/claim"
)

// EdgeConsumeCall records one claim/consume request as the edge saw it.
type EdgeConsumeCall struct {
	ClaimID   string `json:"claimId"`
	ClaimCode string `json:"claimCode"`
}

// EdgeServer is a stub on-premise server implementing the two public
// pairing endpoints. Responses are configurable and every request is
// recorded for assertions.
type EdgeServer struct {
	srv *httptest.Server

	mu             sync.Mutex
	consume        claim.ConsumeResponse
	consumeStatus  int
	finalizeStatus int
	consumes       []EdgeConsumeCall
	finalizes      []claim.FinalizeRequest
}

// NewEdgeServer starts a stub edge answering consume calls with resp.
// Callers must Close it.
func NewEdgeServer(resp claim.ConsumeResponse) *EdgeServer {
	e := &EdgeServer{
		consume:        resp,
		consumeStatus:  http.StatusOK,
		finalizeStatus: http.StatusOK,
	}
	e.srv = httptest.NewServer(http.HandlerFunc(e.handle))
	return e
}

// URL is the edge base URL claims should target.
func (e *EdgeServer) URL() string { return e.srv.URL }

// Close shuts the stub down.
func (e *EdgeServer) Close() { e.srv.Close() }

// FailConsume makes subsequent consume calls answer with the given status.
func (e *EdgeServer) FailConsume(status int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consumeStatus = status
}

// FailFinalize makes subsequent finalize calls answer with the given
// status.
func (e *EdgeServer) FailFinalize(status int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finalizeStatus = status
}

// Consumes returns the consume calls received so far.
func (e *EdgeServer) Consumes() []EdgeConsumeCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]EdgeConsumeCall, len(e.consumes))
	copy(out, e.consumes)
	return out
}

// Finalizes returns the finalize calls received so far.
func (e *EdgeServer) Finalizes() []claim.FinalizeRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]claim.FinalizeRequest, len(e.finalizes))
	copy(out, e.finalizes)
	return out
}

func (e *EdgeServer) handle(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/onsite/public/claim/consume":
		var call EdgeConsumeCall
		_ = json.NewDecoder(r.Body).Decode(&call)

		e.mu.Lock()
		e.consumes = append(e.consumes, call)
		status, resp := e.consumeStatus, e.consume
		e.mu.Unlock()

		if status != http.StatusOK {
			http.Error(w, "claim rejected", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)

	case "/onsite/public/claim/finalize":
		var req claim.FinalizeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		e.mu.Lock()
		e.finalizes = append(e.finalizes, req)
		status := e.finalizeStatus
		e.mu.Unlock()

		if status != http.StatusOK {
			http.Error(w, "finalize rejected", status)
			return
		}
		w.WriteHeader(http.StatusOK)

	default:
		http.NotFound(w, r)
	}
}
