package rdrbridge

// Envelope is the single message type exchanged in both directions over
// the renderer stream; Kind discriminates the payload the way the
// teacher's VsockMessage.Type discriminates its JSON payload.
type Envelope struct {
	Kind string `json:"kind"`

	// Hello identifies a freshly dialed renderer (client -> server,
	// first message only).
	Hello *HelloPayload `json:"hello,omitempty"`

	// Event carries a renderer-originated interaction (client -> server):
	// a click, a form change, a window-close request.
	Event *RendererEvent `json:"event,omitempty"`

	// Patch carries a DOM mutation to apply (server -> client).
	Patch *DOMPatch `json:"patch,omitempty"`

	// State carries a connection-lifecycle notice (server -> client):
	// rdrState:connLost's mirror image, used for ping/pong keepalive.
	State *StateNotice `json:"state,omitempty"`
}

const (
	KindHello = "hello"
	KindEvent = "event"
	KindPatch = "patch"
	KindState = "state"
)

// HelloPayload identifies the renderer and the workspace/window/widget
// triple it is rendering (spec §3 "Renderer connection binding").
type HelloPayload struct {
	RendererID string `json:"renderer_id"`
	Workspace  string `json:"workspace"`
	Window     string `json:"window"`
	Widget     string `json:"widget"`
}

// RendererEvent is a user interaction the renderer observed against a
// DOM element it owns, destined for the coroutine that owns that
// element (spec §3 "Message" target=coroutine, event type).
type RendererEvent struct {
	CoroutineID uint64 `json:"coroutine_id"`
	ElementKey  uint64 `json:"element_key"`
	EventType   string `json:"event_type"`
	SubType     string `json:"sub_type"`
	DataJSON    string `json:"data_json,omitempty"`
}

// DOMPatch is one DOM mutation the interpreter asks the renderer to
// apply (append/displace/erase/clear against an anchor element).
type DOMPatch struct {
	CoroutineID uint64 `json:"coroutine_id"`
	AnchorKey   uint64 `json:"anchor_key"`
	Op          string `json:"op"` // append, prepend, insertBefore, insertAfter, displace, update, erase, clear
	ContentHTML string `json:"content_html"`
}

// StateNotice mirrors rdrState events (spec §4.8): connLost,
// lostDuplicate, or a plain keepalive ping.
type StateNotice struct {
	SubType string `json:"sub_type"`
}
