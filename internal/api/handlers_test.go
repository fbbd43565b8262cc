package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/blockpad/backend/internal/blockdef"
	"github.com/blockpad/backend/internal/controller"
	"github.com/blockpad/backend/internal/session"
	"github.com/blockpad/backend/internal/storage"
)

type testEnv struct {
	e        *echo.Echo
	h        *Handler
	sessions *session.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defs := blockdef.StandardRegistry()
	sessions := session.NewManager(defs, controller.DefaultConfig())
	h := NewHandler(store, sessions, nil, nil, defs, blockdef.DefaultToolbox(), true)
	return &testEnv{e: echo.New(), h: h, sessions: sessions}
}

func (env *testEnv) jsonRequest(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	return env.e.NewContext(req, rec), rec
}

func (env *testEnv) createSession(t *testing.T) string {
	t.Helper()
	c, rec := env.jsonRequest(http.MethodPost, "/api/sessions", "")
	if err := env.h.HandleCreateSession(c); err != nil {
		t.Fatal(err)
	}
	var info session.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	return info.ID
}

func (env *testEnv) createBlock(t *testing.T, sessionID, typeName string, x, y float64) blockResponse {
	t.Helper()
	c, rec := env.jsonRequest(http.MethodPost, "/",
		`{"type":"`+typeName+`","x":`+jsonNum(x)+`,"y":`+jsonNum(y)+`}`)
	c.SetParamNames("sessionId")
	c.SetParamValues(sessionID)
	if err := env.h.HandleCreateBlock(c); err != nil {
		t.Fatal(err)
	}
	var resp blockResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func jsonNum(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func apiError(t *testing.T, err error) *APIError {
	t.Helper()
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error %v (%T) is not an *APIError", err, err)
	}
	return apiErr
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	c, rec := env.jsonRequest(http.MethodGet, "/api/health", "")
	if assert.NoError(t, env.h.HandleHealth(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	}
}

func TestBlockTypesAndToolbox(t *testing.T) {
	env := newTestEnv(t)

	c, rec := env.jsonRequest(http.MethodGet, "/api/blocks/types", "")
	if assert.NoError(t, env.h.HandleListBlockTypes(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"type":"controls_repeat"`)
	}

	c, rec = env.jsonRequest(http.MethodGet, "/api/blocks/toolbox", "")
	if assert.NoError(t, env.h.HandleGetToolbox(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"name":"Control"`)
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	// 1. Create
	c, rec := env.jsonRequest(http.MethodPost, "/api/sessions", "")
	if assert.NoError(t, env.h.HandleCreateSession(c)) {
		assert.Equal(t, http.StatusCreated, rec.Code)
	}
	var info session.Info
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.NotEmpty(t, info.ID)

	// 2. Get
	c, rec = env.jsonRequest(http.MethodGet, "/", "")
	c.SetParamNames("sessionId")
	c.SetParamValues(info.ID)
	if assert.NoError(t, env.h.HandleGetSession(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), info.ID)
	}

	// 3. Keep-alive
	c, rec = env.jsonRequest(http.MethodPost, "/", "")
	c.SetParamNames("sessionId")
	c.SetParamValues(info.ID)
	if assert.NoError(t, env.h.HandleSessionKeepAlive(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	// 4. Delete
	c, rec = env.jsonRequest(http.MethodDelete, "/", "")
	c.SetParamNames("sessionId")
	c.SetParamValues(info.ID)
	if assert.NoError(t, env.h.HandleDeleteSession(c)) {
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}

	// 5. Gone
	c, _ = env.jsonRequest(http.MethodGet, "/", "")
	c.SetParamNames("sessionId")
	c.SetParamValues(info.ID)
	err := env.h.HandleGetSession(c)
	assert.Equal(t, "NOT_FOUND", apiError(t, err).Code)
}

func TestCreateBlock(t *testing.T) {
	env := newTestEnv(t)
	sid := env.createSession(t)

	resp := env.createBlock(t, sid, "math_number", 10, 20)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "math_number", resp.Type)
	assert.Equal(t, 10.0, resp.X)

	st, _ := env.sessions.Get(sid)
	assert.NotNil(t, st.Workspace.Block(resp.ID))

	// Unknown type
	c, _ := env.jsonRequest(http.MethodPost, "/", `{"type":"nope"}`)
	c.SetParamNames("sessionId")
	c.SetParamValues(sid)
	assert.Error(t, env.h.HandleCreateBlock(c))

	// Missing type
	c, _ = env.jsonRequest(http.MethodPost, "/", `{}`)
	c.SetParamNames("sessionId")
	c.SetParamValues(sid)
	assert.Equal(t, "VALIDATION_ERROR", apiError(t, env.h.HandleCreateBlock(c)).Code)
}

func TestConnectAndDetach(t *testing.T) {
	env := newTestEnv(t)
	sid := env.createSession(t)
	print := env.createBlock(t, sid, "text_print", 0, 0)
	text := env.createBlock(t, sid, "text", 300, 300)

	st, _ := env.sessions.Get(sid)
	input := st.Workspace.Block(print.ID).Input("TEXT").Connection
	output := st.Workspace.Block(text.ID).Output

	// 1. Connect
	c, rec := env.jsonRequest(http.MethodPost, "/",
		`{"connectionId":"`+input.ID+`","targetId":"`+output.ID+`"}`)
	c.SetParamNames("sessionId")
	c.SetParamValues(sid)
	if assert.NoError(t, env.h.HandleConnect(c)) {
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	assert.Equal(t, print.ID, st.Workspace.Block(text.ID).ParentBlock().ID)

	// 2. Connecting again conflicts
	other := env.createBlock(t, sid, "text", 300, 400)
	otherOut := st.Workspace.Block(other.ID).Output
	c, _ = env.jsonRequest(http.MethodPost, "/",
		`{"connectionId":"`+input.ID+`","targetId":"`+otherOut.ID+`"}`)
	c.SetParamNames("sessionId")
	c.SetParamValues(sid)
	err := env.h.HandleConnect(c)
	apiErr := apiError(t, err)
	assert.Equal(t, "ALREADY_CONNECTED", apiErr.Code)
	assert.Equal(t, http.StatusConflict, apiErr.Status)

	// 3. Detach
	c, rec = env.jsonRequest(http.MethodPost, "/", "")
	c.SetParamNames("sessionId", "blockId")
	c.SetParamValues(sid, text.ID)
	if assert.NoError(t, env.h.HandleDetachBlock(c)) {
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	assert.Nil(t, st.Workspace.Block(text.ID).ParentBlock())
}

func TestConnectIncompatible(t *testing.T) {
	env := newTestEnv(t)
	sid := env.createSession(t)
	ifBlock := env.createBlock(t, sid, "controls_if", 0, 0)
	num := env.createBlock(t, sid, "math_number", 300, 300)

	st, _ := env.sessions.Get(sid)
	input := st.Workspace.Block(ifBlock.ID).Input("IF0").Connection
	output := st.Workspace.Block(num.ID).Output

	c, _ := env.jsonRequest(http.MethodPost, "/",
		`{"connectionId":"`+input.ID+`","targetId":"`+output.ID+`"}`)
	c.SetParamNames("sessionId")
	c.SetParamValues(sid)
	err := env.h.HandleConnect(c)
	apiErr := apiError(t, err)
	assert.Equal(t, "INCOMPATIBLE_CONNECTION", apiErr.Code)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
}

func TestDragBlock(t *testing.T) {
	env := newTestEnv(t)
	sid := env.createSession(t)
	print := env.createBlock(t, sid, "text_print", 0, 0)
	text := env.createBlock(t, sid, "text", 300, 300)

	c, rec := env.jsonRequest(http.MethodPost, "/", `{"x":70,"y":0}`)
	c.SetParamNames("sessionId", "blockId")
	c.SetParamValues(sid, text.ID)
	if assert.NoError(t, env.h.HandleDragBlock(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	var res controller.DragResult
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Snapped)
	assert.Equal(t, print.ID, res.ParentBlockID)
}

func TestRemoveBlockCascadeOverride(t *testing.T) {
	env := newTestEnv(t)
	sid := env.createSession(t)
	st, _ := env.sessions.Get(sid)

	// repeat -> print chained below it
	repeat := env.createBlock(t, sid, "controls_repeat", 0, 0)
	print := env.createBlock(t, sid, "text_print", 300, 300)
	repeatBlock := st.Workspace.Block(repeat.ID)
	printBlock := st.Workspace.Block(print.ID)
	assert.NoError(t, st.Controller.Connect(repeatBlock.Next.ID, printBlock.Previous.ID))

	// 1. cascade=false keeps the chained block
	c, rec := env.jsonRequest(http.MethodDelete, "/?cascade=false", "")
	c.SetParamNames("sessionId", "blockId")
	c.SetParamValues(sid, repeat.ID)
	if assert.NoError(t, env.h.HandleRemoveBlock(c)) {
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	assert.Nil(t, st.Workspace.Block(repeat.ID))
	assert.NotNil(t, st.Workspace.Block(print.ID))

	// 2. default policy cascades
	repeat2 := env.createBlock(t, sid, "controls_repeat", 0, 0)
	assert.NoError(t, st.Controller.Connect(
		st.Workspace.Block(repeat2.ID).Next.ID, printBlock.Previous.ID))
	c, rec = env.jsonRequest(http.MethodDelete, "/", "")
	c.SetParamNames("sessionId", "blockId")
	c.SetParamValues(sid, repeat2.ID)
	if assert.NoError(t, env.h.HandleRemoveBlock(c)) {
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	assert.Nil(t, st.Workspace.Block(print.ID))

	// 3. invalid cascade value
	c, _ = env.jsonRequest(http.MethodDelete, "/?cascade=maybe", "")
	c.SetParamNames("sessionId", "blockId")
	c.SetParamValues(sid, "whatever")
	assert.Equal(t, "VALIDATION_ERROR", apiError(t, env.h.HandleRemoveBlock(c)).Code)
}

func TestSetFieldAndMutate(t *testing.T) {
	env := newTestEnv(t)
	sid := env.createSession(t)
	st, _ := env.sessions.Get(sid)
	ifBlock := env.createBlock(t, sid, "controls_if", 0, 0)
	num := env.createBlock(t, sid, "math_number", 300, 300)

	// 1. Set a field
	c, rec := env.jsonRequest(http.MethodPut, "/", `{"value":"7"}`)
	c.SetParamNames("sessionId", "blockId", "fieldName")
	c.SetParamValues(sid, num.ID, "NUM")
	if assert.NoError(t, env.h.HandleSetField(c)) {
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	assert.Equal(t, "7", st.Workspace.Block(num.ID).Field("NUM").Value())

	// 2. Unknown field
	c, _ = env.jsonRequest(http.MethodPut, "/", `{"value":"7"}`)
	c.SetParamNames("sessionId", "blockId", "fieldName")
	c.SetParamValues(sid, num.ID, "WRONG")
	assert.Equal(t, "NOT_FOUND", apiError(t, env.h.HandleSetField(c)).Code)

	// 3. Mutate the if block to gain an else slot
	c, rec = env.jsonRequest(http.MethodPost, "/", `{"inputs":[
		{"name":"IF0","kind":"value","checks":["Boolean"]},
		{"name":"DO0","kind":"statement"},
		{"name":"ELSE","kind":"statement"}
	]}`)
	c.SetParamNames("sessionId", "blockId")
	c.SetParamValues(sid, ifBlock.ID)
	if assert.NoError(t, env.h.HandleMutateBlock(c)) {
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	assert.NotNil(t, st.Workspace.Block(ifBlock.ID).Input("ELSE"))
}

func TestResetWorkspace(t *testing.T) {
	env := newTestEnv(t)
	sid := env.createSession(t)
	env.createBlock(t, sid, "text", 0, 0)

	c, rec := env.jsonRequest(http.MethodPost, "/", "")
	c.SetParamNames("sessionId")
	c.SetParamValues(sid)
	if assert.NoError(t, env.h.HandleResetWorkspace(c)) {
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	st, _ := env.sessions.Get(sid)
	assert.Equal(t, 0, st.Workspace.BlockCount())
}

func TestUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	c, _ := env.jsonRequest(http.MethodPost, "/", `{"type":"text"}`)
	c.SetParamNames("sessionId")
	c.SetParamValues("missing")
	apiErr := apiError(t, env.h.HandleCreateBlock(c))
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}
