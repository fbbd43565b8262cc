package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/blockpad/backend/internal/blockdef"
	"github.com/blockpad/backend/internal/controller"
	"github.com/blockpad/backend/internal/session"
	"github.com/blockpad/backend/internal/testutil"
)

// buildProgram puts a small program into the session: a print block with a
// text literal plugged into it.
func buildProgram(t *testing.T, env *testEnv, sid string) {
	t.Helper()
	print := env.createBlock(t, sid, "text_print", 0, 0)
	text := env.createBlock(t, sid, "text", 300, 300)
	st, _ := env.sessions.Get(sid)
	assert.NoError(t, st.Controller.Connect(
		st.Workspace.Block(print.ID).Input("TEXT").Connection.ID,
		st.Workspace.Block(text.ID).Output.ID))
	assert.NoError(t, st.Controller.SetField(text.ID, "TEXT", "hello"))
}

func TestGetDocument(t *testing.T) {
	env := newTestEnv(t)
	sid := env.createSession(t)
	buildProgram(t, env, sid)

	// 1. XML form
	c, rec := env.jsonRequest(http.MethodGet, "/", "")
	c.SetParamNames("sessionId")
	c.SetParamValues(sid)
	if assert.NoError(t, env.h.HandleGetDocument(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `<block type="text_print"`)
		assert.Contains(t, rec.Body.String(), `<field name="TEXT">hello</field>`)
	}

	// 2. msgpack form
	c, rec = env.jsonRequest(http.MethodGet, "/", "")
	c.SetParamNames("sessionId")
	c.SetParamValues(sid)
	if assert.NoError(t, env.h.HandleGetDocumentMsgpack(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/x-msgpack", rec.Header().Get(echo.HeaderContentType))
		assert.NotEmpty(t, rec.Body.Bytes())
	}
}

func TestLoadDocument(t *testing.T) {
	env := newTestEnv(t)
	sid := env.createSession(t)
	st, _ := env.sessions.Get(sid)

	doc := `<xml><block type="math_number" id="n1"><field name="NUM">5</field></block></xml>`
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(doc))
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	c.SetParamNames("sessionId")
	c.SetParamValues(sid)
	if assert.NoError(t, env.h.HandleLoadDocument(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, st.Workspace.BlockCount())
	assert.Equal(t, "5", st.Workspace.Block("n1").Field("NUM").Value())

	// Malformed documents must not disturb the loaded state.
	bad := `<xml><block type="no_such_type" id="x"/></xml>`
	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(bad))
	c = env.e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("sessionId")
	c.SetParamValues(sid)
	apiErr := apiError(t, env.h.HandleLoadDocument(c))
	assert.Equal(t, "MALFORMED_DOCUMENT", apiErr.Code)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, 1, st.Workspace.BlockCount())
}

func TestSaveListOpenDocument(t *testing.T) {
	env := newTestEnv(t)
	sid := env.createSession(t)
	buildProgram(t, env, sid)

	// 1. Save
	c, rec := env.jsonRequest(http.MethodPost, "/", `{"name":"demo"}`)
	c.SetParamNames("sessionId")
	c.SetParamValues(sid)
	if assert.NoError(t, env.h.HandleSaveDocument(c)) {
		assert.Equal(t, http.StatusCreated, rec.Code)
	}
	var saved saveResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.NotEmpty(t, saved.DocumentID)
	assert.Empty(t, saved.RevisionID) // history disabled in this env

	// 2. List
	c, rec = env.jsonRequest(http.MethodGet, "/api/documents", "")
	if assert.NoError(t, env.h.HandleListDocuments(c)) {
		assert.Contains(t, rec.Body.String(), `"name":"demo"`)
	}

	// 3. Open into a fresh session
	other := env.createSession(t)
	c, rec = env.jsonRequest(http.MethodPost, "/", "")
	c.SetParamNames("sessionId", "docId")
	c.SetParamValues(other, saved.DocumentID)
	if assert.NoError(t, env.h.HandleOpenDocument(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	st, _ := env.sessions.Get(other)
	assert.Equal(t, 2, st.Workspace.BlockCount())

	// 4. Rename
	c, rec = env.jsonRequest(http.MethodPut, "/", `{"name":"renamed"}`)
	c.SetParamNames("docId")
	c.SetParamValues(saved.DocumentID)
	if assert.NoError(t, env.h.HandleRenameDocument(c)) {
		assert.Contains(t, rec.Body.String(), `"name":"renamed"`)
	}

	// 5. Delete
	c, rec = env.jsonRequest(http.MethodDelete, "/", "")
	c.SetParamNames("docId")
	c.SetParamValues(saved.DocumentID)
	if assert.NoError(t, env.h.HandleDeleteDocument(c)) {
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	c, _ = env.jsonRequest(http.MethodPost, "/", "")
	c.SetParamNames("sessionId", "docId")
	c.SetParamValues(other, saved.DocumentID)
	assert.Equal(t, "NOT_FOUND", apiError(t, env.h.HandleOpenDocument(c)).Code)
}

func TestSaveDocumentValidation(t *testing.T) {
	env := newTestEnv(t)
	sid := env.createSession(t)

	c, _ := env.jsonRequest(http.MethodPost, "/", `{}`)
	c.SetParamNames("sessionId")
	c.SetParamValues(sid)
	assert.Equal(t, "VALIDATION_ERROR", apiError(t, env.h.HandleSaveDocument(c)).Code)
}

func TestSaveDocumentStorageFailure(t *testing.T) {
	defs := blockdef.StandardRegistry()
	sessions := session.NewManager(defs, controller.DefaultConfig())
	mock := testutil.NewMockStore()
	mock.FailSave = errors.New("disk full")
	h := NewHandler(mock, sessions, nil, nil, defs, blockdef.DefaultToolbox(), true)
	env := &testEnv{e: echo.New(), h: h, sessions: sessions}
	sid := env.createSession(t)

	c, _ := env.jsonRequest(http.MethodPost, "/", `{"name":"demo"}`)
	c.SetParamNames("sessionId")
	c.SetParamValues(sid)
	apiErr := apiError(t, env.h.HandleSaveDocument(c))
	assert.Equal(t, "INTERNAL_ERROR", apiErr.Code)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, 0, mock.Count())
}

func TestRevisionsDisabled(t *testing.T) {
	env := newTestEnv(t)
	sid := env.createSession(t)

	c, _ := env.jsonRequest(http.MethodGet, "/", "")
	c.SetParamNames("sessionId")
	c.SetParamValues(sid)
	apiErr := apiError(t, env.h.HandleListRevisions(c))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
}
