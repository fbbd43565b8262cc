// handlers_document.go - Serialization, persistence, and revision history
package api

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// HandleGetDocument serializes the session workspace as XML.
func (h *Handler) HandleGetDocument(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return apiErr
	}
	data, err := st.Controller.SerializeXML()
	if err != nil {
		return FromModelError(err)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationXMLCharsetUTF8, data)
}

// HandleGetDocumentMsgpack serializes the session workspace as a compact
// msgpack snapshot.
func (h *Handler) HandleGetDocumentMsgpack(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return apiErr
	}
	data, err := st.Controller.SerializeSnapshot()
	if err != nil {
		return FromModelError(err)
	}
	return c.Blob(http.StatusOK, "application/x-msgpack", data)
}

// HandleLoadDocument replaces the session workspace from an XML document in
// the request body. Loading is all-or-nothing.
func (h *Handler) HandleLoadDocument(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return apiErr
	}
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return NewBadRequestError("reading request body", err)
	}
	if len(data) == 0 {
		return NewValidationError("body")
	}
	if err := st.Controller.LoadXML(data); err != nil {
		return FromModelError(err)
	}
	return c.JSON(http.StatusOK, st.Info())
}

type saveRequest struct {
	Name string `json:"name"`
}

type saveResponse struct {
	DocumentID string `json:"documentId"`
	RevisionID string `json:"revisionId,omitempty"`
	Name       string `json:"name"`
}

// HandleSaveDocument serializes the workspace and persists it: the XML
// payload goes to document storage and a revision row to history.
func (h *Handler) HandleSaveDocument(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return apiErr
	}
	var req saveRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Name == "" {
		return NewValidationError("name")
	}

	data, err := st.Controller.SerializeXML()
	if err != nil {
		return FromModelError(err)
	}
	info, err := h.store.Save(req.Name, bytes.NewReader(data))
	if err != nil {
		return NewInternalError("saving document", err)
	}

	resp := saveResponse{DocumentID: info.ID, Name: info.Name}
	if h.revisions != nil {
		rev, err := h.revisions.Append(st.ID, req.Name, st.Workspace.BlockCount(), data)
		if err != nil {
			// The document itself saved; history is best effort.
			c.Logger().Warnf("recording revision: %v", err)
		} else {
			resp.RevisionID = rev.ID
		}
	}
	return c.JSON(http.StatusCreated, resp)
}

// HandleListDocuments returns recently saved documents.
func (h *Handler) HandleListDocuments(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return NewValidationError("limit")
		}
		limit = n
	}
	list, err := h.store.List(limit)
	if err != nil {
		return NewInternalError("listing documents", err)
	}
	return c.JSON(http.StatusOK, list)
}

// HandleOpenDocument loads a saved document into the session workspace.
func (h *Handler) HandleOpenDocument(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return apiErr
	}
	docID := c.Param("docId")
	data, err := h.store.Read(docID)
	if err != nil {
		return NewNotFoundError("document", docID)
	}
	if err := st.Controller.LoadXML(data); err != nil {
		return FromModelError(err)
	}
	return c.JSON(http.StatusOK, st.Info())
}

// HandleDeleteDocument removes a saved document. Deletion can be disabled
// in the server config; the route is not registered then, but the handler
// re-checks in case it is wired up elsewhere.
func (h *Handler) HandleDeleteDocument(c echo.Context) error {
	if !h.allowDelete {
		return NewForbiddenError("document deletion is disabled")
	}
	docID := c.Param("docId")
	if err := h.store.Delete(docID); err != nil {
		return NewNotFoundError("document", docID)
	}
	return c.NoContent(http.StatusNoContent)
}

type renameRequest struct {
	Name string `json:"name"`
}

// HandleRenameDocument changes a saved document's display name.
func (h *Handler) HandleRenameDocument(c echo.Context) error {
	var req renameRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Name == "" {
		return NewValidationError("name")
	}
	info, err := h.store.Rename(c.Param("docId"), req.Name)
	if err != nil {
		return NewNotFoundError("document", c.Param("docId"))
	}
	return c.JSON(http.StatusOK, info)
}

// HandleListRevisions returns the newest revisions recorded for a session.
func (h *Handler) HandleListRevisions(c echo.Context) error {
	if h.revisions == nil {
		return NewServiceUnavailableError("revision history is disabled")
	}
	st, apiErr := h.session(c)
	if apiErr != nil {
		return apiErr
	}
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return NewValidationError("limit")
		}
		limit = n
	}
	revs, err := h.revisions.Recent(st.ID, limit)
	if err != nil {
		return NewInternalError("listing revisions", err)
	}
	return c.JSON(http.StatusOK, revs)
}

// HandleRestoreRevision loads a recorded revision back into the session
// workspace.
func (h *Handler) HandleRestoreRevision(c echo.Context) error {
	if h.revisions == nil {
		return NewServiceUnavailableError("revision history is disabled")
	}
	st, apiErr := h.session(c)
	if apiErr != nil {
		return apiErr
	}
	revID := c.Param("revisionId")
	rev, err := h.revisions.Get(revID)
	if err != nil {
		return NewNotFoundError("revision", revID)
	}
	if err := st.Controller.LoadXML(rev.Document); err != nil {
		return FromModelError(err)
	}
	return c.JSON(http.StatusOK, st.Info())
}
