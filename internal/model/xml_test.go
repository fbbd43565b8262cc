package model

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

// testFactory is a minimal stand-in for the definition registry, enough to
// exercise the document loader.
type testFactory struct{}

func (testFactory) NewBlockWithID(typeName, id string) (*Block, error) {
	b := NewBlock(id, typeName)
	switch typeName {
	case "controls_repeat":
		b.Fields = []*Field{NewField("TIMES", FieldNumber)}
		b.Previous = &Connection{ID: id + "-prev", Kind: PreviousStatement}
		b.AttachConnection(b.Previous)
		b.Next = &Connection{ID: id + "-next", Kind: NextStatement}
		b.AttachConnection(b.Next)
		do := &Connection{ID: id + "-DO", Kind: NextStatement}
		b.AttachConnection(do)
		b.Inputs = []*Input{{Name: "DO", Connection: do}}
	case "text_print":
		b.Previous = &Connection{ID: id + "-prev", Kind: PreviousStatement}
		b.AttachConnection(b.Previous)
		b.Next = &Connection{ID: id + "-next", Kind: NextStatement}
		b.AttachConnection(b.Next)
		text := &Connection{ID: id + "-TEXT", Kind: InputValue}
		b.AttachConnection(text)
		b.Inputs = []*Input{{Name: "TEXT", Connection: text}}
	case "math_number":
		b.Fields = []*Field{NewField("NUM", FieldNumber)}
		b.Output = &Connection{ID: id + "-out", Kind: OutputValue, Checks: []string{"Number"}}
		b.AttachConnection(b.Output)
	case "text":
		b.Fields = []*Field{NewField("TEXT", FieldText)}
		b.Output = &Connection{ID: id + "-out", Kind: OutputValue, Checks: []string{"String"}}
		b.AttachConnection(b.Output)
	default:
		return nil, fmt.Errorf("unknown block type %q", typeName)
	}
	return b, nil
}

// repeatPrintWorkspace builds the canonical two-statement program: a repeat
// loop printing a string, followed by a chained second print.
func repeatPrintWorkspace(t *testing.T) *Workspace {
	t.Helper()
	f := testFactory{}
	ws := NewWorkspace()

	repeat, _ := f.NewBlockWithID("controls_repeat", "rpt")
	if err := repeat.Field("TIMES").SetValue("3"); err != nil {
		t.Fatal(err)
	}
	repeat.MoveTo(20, 30)

	inner, _ := f.NewBlockWithID("text_print", "inner")
	msg, _ := f.NewBlockWithID("text", "msg")
	if err := msg.Field("TEXT").SetValue("hello"); err != nil {
		t.Fatal(err)
	}
	after, _ := f.NewBlockWithID("text_print", "after")

	if err := msg.ConnectAsChildOf(inner.Input("TEXT").Connection); err != nil {
		t.Fatal(err)
	}
	if err := inner.ConnectAsChildOf(repeat.Input("DO").Connection); err != nil {
		t.Fatal(err)
	}
	if err := after.ConnectAsChildOf(repeat.Next); err != nil {
		t.Fatal(err)
	}
	if err := ws.AddBlockTree(repeat); err != nil {
		t.Fatal(err)
	}
	return ws
}

func TestSerializeXMLStructure(t *testing.T) {
	ws := repeatPrintWorkspace(t)
	out, err := ws.SerializeXML()
	if err != nil {
		t.Fatalf("SerializeXML failed: %v", err)
	}
	doc := string(out)

	// Statement body nests inside the repeat element; the trailing print is
	// a <next> continuation, not a second root.
	for _, want := range []string{
		`<block type="controls_repeat" id="rpt"`,
		`<field name="TIMES">3</field>`,
		`<statement name="DO">`,
		`<value name="TEXT">`,
		`<field name="TEXT">hello</field>`,
		`<next>`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("output missing %q:\n%s", want, doc)
		}
	}
	if n := strings.Count(doc, `type="text_print"`); n != 2 {
		t.Errorf("text_print count = %d, want 2", n)
	}
	// Exactly one root element.
	if n := strings.Count(doc, "\n  <block "); n != 1 {
		t.Errorf("root block count = %d, want 1:\n%s", n, doc)
	}
}

func TestXMLRoundTrip(t *testing.T) {
	ws := repeatPrintWorkspace(t)
	first, err := ws.SerializeXML()
	if err != nil {
		t.Fatal(err)
	}

	loaded := NewWorkspace()
	if err := loaded.LoadXML(first, testFactory{}); err != nil {
		t.Fatalf("LoadXML failed: %v", err)
	}
	if loaded.BlockCount() != ws.BlockCount() {
		t.Errorf("loaded %d blocks, want %d", loaded.BlockCount(), ws.BlockCount())
	}
	rpt := loaded.Block("rpt")
	if rpt == nil {
		t.Fatal("repeat block missing after load")
	}
	if rpt.X != 20 || rpt.Y != 30 {
		t.Errorf("root position = (%v,%v), want (20,30)", rpt.X, rpt.Y)
	}
	if got := rpt.Field("TIMES").Value(); got != "3" {
		t.Errorf("TIMES = %q, want 3", got)
	}
	if nb := rpt.NextBlock(); nb == nil || nb.ID != "after" {
		t.Errorf("next chain lost: %v", nb)
	}

	second, err := loaded.SerializeXML()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("round trip not stable:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestLoadXMLUnknownTypeIsAtomic(t *testing.T) {
	ws := repeatPrintWorkspace(t)
	before := ws.BlockCount()

	doc := `<xml>
  <block type="math_number" id="ok"><field name="NUM">1</field></block>
  <block type="does_not_exist" id="bad"></block>
</xml>`
	err := ws.LoadXML([]byte(doc), testFactory{})
	if !errors.Is(err, ErrMalformedDocument) {
		t.Fatalf("err = %v, want ErrMalformedDocument", err)
	}
	if ws.BlockCount() != before {
		t.Errorf("failed load changed the workspace: %d blocks, want %d", ws.BlockCount(), before)
	}
	if ws.Block("ok") != nil {
		t.Error("no block from a failed load may be registered")
	}
}

func TestLoadXMLRejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"invalid xml", `<xml><block`},
		{"missing type", `<xml><block id="a"></block></xml>`},
		{"unknown field", `<xml><block type="math_number" id="a"><field name="WRONG">1</field></block></xml>`},
		{"bad field value", `<xml><block type="math_number" id="a"><field name="NUM">abc</field></block></xml>`},
		{"unknown input", `<xml><block type="text_print" id="a"><value name="WRONG"><block type="text" id="b"/></value></block></xml>`},
		{"duplicate id", `<xml><block type="math_number" id="a"/><block type="math_number" id="a"/></xml>`},
		{
			"incompatible child",
			`<xml><block type="controls_repeat" id="a"><statement name="DO"><block type="math_number" id="b"/></statement></block></xml>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := NewWorkspace()
			err := ws.LoadXML([]byte(tt.doc), testFactory{})
			if !errors.Is(err, ErrMalformedDocument) {
				t.Errorf("err = %v, want ErrMalformedDocument", err)
			}
			if ws.BlockCount() != 0 {
				t.Error("failed load must leave the workspace empty")
			}
		})
	}
}

func TestLoadXMLEmptyDocument(t *testing.T) {
	ws := repeatPrintWorkspace(t)
	if err := ws.LoadXML([]byte(`<xml></xml>`), testFactory{}); err != nil {
		t.Fatalf("LoadXML failed: %v", err)
	}
	if ws.BlockCount() != 0 {
		t.Errorf("empty document must clear the workspace, %d blocks left", ws.BlockCount())
	}
}

func TestSerializeSnapshot(t *testing.T) {
	ws := repeatPrintWorkspace(t)
	out, err := ws.SerializeSnapshot()
	if err != nil {
		t.Fatalf("SerializeSnapshot failed: %v", err)
	}

	var decoded struct {
		Blocks []struct {
			Type string `msgpack:"type"`
			ID   string `msgpack:"id"`
		} `msgpack:"blocks"`
	}
	if err := msgpack.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("snapshot is not valid msgpack: %v", err)
	}
	if len(decoded.Blocks) != 1 || decoded.Blocks[0].ID != "rpt" {
		t.Errorf("decoded roots = %+v, want the repeat block", decoded.Blocks)
	}
}

func TestSerializeFencesMutation(t *testing.T) {
	ws := repeatPrintWorkspace(t)
	ws.BeginSerialize()
	err := ws.LoadXML([]byte(`<xml></xml>`), testFactory{})
	ws.EndSerialize()
	if !errors.Is(err, ErrConcurrentModification) {
		t.Errorf("LoadXML during serialization err = %v, want ErrConcurrentModification", err)
	}
}
