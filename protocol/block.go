package protocol

// Header is the first object written to the host. It announces the protocol
// version and whether click events should be sent back on stdin.
type Header struct {
	Version     int  `json:"version"`
	ClickEvents bool `json:"click_events"`
	StopSignal  int  `json:"stop_signal,omitempty"`
	ContSignal  int  `json:"cont_signal,omitempty"`
}

// DefaultHeader returns the header used unless configuration says otherwise
func DefaultHeader() Header {
	return Header{Version: 1, ClickEvents: true}
}

// Block is one rendered segment of the status line.
//
// Blocks are values: a module builds a new Block for every update and the
// aggregator replaces the slot's block wholesale. Name and Instance are set
// by the aggregator from the slot configuration so the host can route click
// events back.
type Block struct {
	FullText            string `json:"full_text"`
	ShortText           string `json:"short_text,omitempty"`
	Color               string `json:"color,omitempty"`
	Background          string `json:"background,omitempty"`
	Border              string `json:"border,omitempty"`
	MinWidth            any    `json:"min_width,omitempty"`
	Align               string `json:"align,omitempty"`
	Urgent              bool   `json:"urgent,omitempty"`
	Name                string `json:"name,omitempty"`
	Instance            string `json:"instance,omitempty"`
	Separator           *bool  `json:"separator,omitempty"`
	SeparatorBlockWidth *int   `json:"separator_block_width,omitempty"`
	Markup              string `json:"markup,omitempty"`
}

// Text returns a plain block with the given full text
func Text(s string) Block {
	return Block{FullText: s}
}

// ErrorBlock renders an urgent block carrying a short description of what
// went wrong in a module.
func ErrorBlock(text string) Block {
	return Block{FullText: text, Urgent: true}
}

// Key joins name and instance into the label a block's producer is known by
// in logs, metrics and health reports. Two modules may share a name as
// long as their instances differ, so the name alone is not enough.
func Key(name, instance string) string {
	if instance == "" {
		return name
	}
	return name + ":" + instance
}

// WithIdentity returns a copy of b routed to the given name and instance
func (b Block) WithIdentity(name, instance string) Block {
	b.Name = name
	b.Instance = instance
	return b
}
