package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/blockpad/backend/internal/blockdef"
	"github.com/blockpad/backend/internal/codegen"
	"github.com/blockpad/backend/internal/history"
	"github.com/blockpad/backend/internal/session"
	"github.com/blockpad/backend/internal/storage"
)

// Handler handles API requests.
type Handler struct {
	store       storage.Store
	sessions    *session.Manager
	revisions   *history.RevisionStore
	codegen     *codegen.Service
	defs        *blockdef.Registry
	toolbox     *blockdef.Toolbox
	allowDelete bool

	results *resultCache
}

// NewHandler creates a new API handler. revisions and gen may be nil when
// the corresponding feature is disabled in config.
func NewHandler(store storage.Store, sessions *session.Manager, revisions *history.RevisionStore,
	gen *codegen.Service, defs *blockdef.Registry, toolbox *blockdef.Toolbox, allowDelete bool) *Handler {
	return &Handler{
		store:       store,
		sessions:    sessions,
		revisions:   revisions,
		codegen:     gen,
		defs:        defs,
		toolbox:     toolbox,
		allowDelete: allowDelete,
		results:     newResultCache(),
	}
}

// HandleHealth returns server health status.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": h.sessions.Count(),
	})
}

// HandleListBlockTypes returns all registered block definitions.
func (h *Handler) HandleListBlockTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, h.defs.Definitions())
}

// HandleGetToolbox returns the palette configuration.
func (h *Handler) HandleGetToolbox(c echo.Context) error {
	return c.JSON(http.StatusOK, h.toolbox)
}

// --- session lifecycle ---

// HandleCreateSession opens a new editing session.
func (h *Handler) HandleCreateSession(c echo.Context) error {
	st, err := h.sessions.Create()
	if err != nil {
		return NewServiceUnavailableError(err.Error())
	}
	return c.JSON(http.StatusCreated, st.Info())
}

// HandleGetSession returns session metadata.
func (h *Handler) HandleGetSession(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return apiErr
	}
	return c.JSON(http.StatusOK, st.Info())
}

// HandleDeleteSession closes a session.
func (h *Handler) HandleDeleteSession(c echo.Context) error {
	id := c.Param("sessionId")
	if !h.sessions.Delete(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSessionKeepAlive refreshes the session idle timer.
func (h *Handler) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if !h.sessions.Touch(id) {
		return NewNotFoundError("session", id)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// --- block mutations ---

type createBlockRequest struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type blockResponse struct {
	ID   string  `json:"id"`
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// HandleCreateBlock instantiates a block type as a new root chain.
func (h *Handler) HandleCreateBlock(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return apiErr
	}
	var req createBlockRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Type == "" {
		return NewValidationError("type")
	}
	b, err := st.Controller.CreateBlock(req.Type, req.X, req.Y)
	if err != nil {
		return FromModelError(err)
	}
	return c.JSON(http.StatusCreated, blockResponse{ID: b.ID, Type: b.Type, X: b.X, Y: b.Y})
}

// HandleRemoveBlock removes a block. The cascade query parameter overrides
// the configured default policy.
func (h *Handler) HandleRemoveBlock(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return apiErr
	}
	cascade := st.Controller.Config().CascadeDelete
	if v := c.QueryParam("cascade"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return NewValidationError("cascade")
		}
		cascade = b
	}
	if err := st.Controller.RemoveBlock(c.Param("blockId"), cascade); err != nil {
		return FromModelError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type dragRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// HandleDragBlock completes a drag: the block moves to the drop position
// and snaps to the nearest compatible socket in range, if any.
func (h *Handler) HandleDragBlock(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return apiErr
	}
	var req dragRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	res, err := st.Controller.FinishDrag(c.Param("blockId"), req.X, req.Y)
	if err != nil {
		return FromModelError(err)
	}
	return c.JSON(http.StatusOK, res)
}

type connectRequest struct {
	ConnectionID string `json:"connectionId"`
	TargetID     string `json:"targetId"`
}

// HandleConnect links two sockets by id.
func (h *Handler) HandleConnect(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return apiErr
	}
	var req connectRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.ConnectionID == "" {
		return NewValidationError("connectionId")
	}
	if req.TargetID == "" {
		return NewValidationError("targetId")
	}
	if err := st.Controller.Connect(req.ConnectionID, req.TargetID); err != nil {
		return FromModelError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleDetachBlock pulls a block out of its parent socket.
func (h *Handler) HandleDetachBlock(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return apiErr
	}
	if err := st.Controller.DetachBlock(c.Param("blockId")); err != nil {
		return FromModelError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type setFieldRequest struct {
	Value string `json:"value"`
}

// HandleSetField assigns a field value.
func (h *Handler) HandleSetField(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return apiErr
	}
	var req setFieldRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := st.Controller.SetField(c.Param("blockId"), c.Param("fieldName"), req.Value); err != nil {
		return FromModelError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type mutateRequest struct {
	Inputs []blockdef.InputDef `json:"inputs"`
}

// HandleMutateBlock replaces a block's input row (shape mutation).
func (h *Handler) HandleMutateBlock(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return apiErr
	}
	var req mutateRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := st.Controller.MutateBlock(c.Param("blockId"), req.Inputs); err != nil {
		return FromModelError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleResetWorkspace clears all chains from the session workspace.
func (h *Handler) HandleResetWorkspace(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return apiErr
	}
	if err := st.Controller.Reset(); err != nil {
		return FromModelError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// session resolves the :sessionId path parameter.
func (h *Handler) session(c echo.Context) (*session.State, *APIError) {
	id := c.Param("sessionId")
	st, ok := h.sessions.Get(id)
	if !ok {
		return nil, NewNotFoundError("session", id)
	}
	return st, nil
}
