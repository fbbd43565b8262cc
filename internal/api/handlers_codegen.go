// handlers_codegen.go - Asynchronous code generation requests
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/blockpad/backend/internal/codegen"
)

// resultCache holds codegen responses until the client polls them. Entries
// are keyed by session and request id so one session cannot consume
// another's result, and they expire so abandoned requests do not
// accumulate.
type resultCache struct {
	mu      sync.Mutex
	results map[resultKey]cachedResult
}

type resultKey struct {
	sessionID string
	requestID string
}

type cachedResult struct {
	resp    codegen.Response
	addedAt time.Time
}

const resultTTL = 10 * time.Minute

func newResultCache() *resultCache {
	return &resultCache{results: make(map[resultKey]cachedResult)}
}

func (rc *resultCache) put(sessionID string, resp codegen.Response) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for key, r := range rc.results {
		if time.Since(r.addedAt) > resultTTL {
			delete(rc.results, key)
		}
	}
	key := resultKey{sessionID: sessionID, requestID: resp.RequestID}
	rc.results[key] = cachedResult{resp: resp, addedAt: time.Now()}
}

func (rc *resultCache) take(sessionID, requestID string) (codegen.Response, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	key := resultKey{sessionID: sessionID, requestID: requestID}
	r, ok := rc.results[key]
	if ok {
		delete(rc.results, key)
	}
	return r.resp, ok
}

type generateRequest struct {
	Generator string `json:"generator"`
}

type generateAccepted struct {
	RequestID string `json:"requestId"`
}

// HandleGenerate serializes the workspace and submits it to the code
// generation service. The response arrives asynchronously; clients poll
// the result endpoint with the returned request id. A newer request from
// the same session supersedes older ones.
func (h *Handler) HandleGenerate(c echo.Context) error {
	if h.codegen == nil {
		return NewServiceUnavailableError("code generation is disabled")
	}
	st, apiErr := h.session(c)
	if apiErr != nil {
		return apiErr
	}
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Generator == "" {
		return NewValidationError("generator")
	}

	doc, err := st.Controller.SerializeXML()
	if err != nil {
		return FromModelError(err)
	}
	id, err := h.codegen.Submit(codegen.Request{
		Origin:      st.ID,
		Document:    doc,
		Definitions: "standard",
		Generator:   req.Generator,
	}, func(resp codegen.Response) { h.results.put(st.ID, resp) })
	if err != nil {
		return NewServiceUnavailableError(err.Error())
	}
	return c.JSON(http.StatusAccepted, generateAccepted{RequestID: id})
}

// HandleGenerateResult polls for a generation result. 204 while pending.
func (h *Handler) HandleGenerateResult(c echo.Context) error {
	if h.codegen == nil {
		return NewServiceUnavailableError("code generation is disabled")
	}
	st, apiErr := h.session(c)
	if apiErr != nil {
		return apiErr
	}
	resp, ok := h.results.take(st.ID, c.Param("requestId"))
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, resp)
}
