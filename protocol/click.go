package protocol

// ClickEvent is an interaction reported by the host for one block
type ClickEvent struct {
	Name      string   `json:"name"`
	Instance  string   `json:"instance,omitempty"`
	Button    int      `json:"button"`
	Event     int      `json:"event,omitempty"`
	X         int      `json:"x"`
	Y         int      `json:"y"`
	RelativeX int      `json:"relative_x,omitempty"`
	RelativeY int      `json:"relative_y,omitempty"`
	Width     int      `json:"width,omitempty"`
	Height    int      `json:"height,omitempty"`
	Modifiers []string `json:"modifiers,omitempty"`
}

// Mouse buttons as numbered by the host
const (
	ButtonLeft       = 1
	ButtonMiddle     = 2
	ButtonRight      = 3
	ButtonScrollUp   = 4
	ButtonScrollDown = 5
)

// Matches reports whether the event targets a block with the given identity
func (e ClickEvent) Matches(name, instance string) bool {
	return e.Name == name && e.Instance == instance
}
