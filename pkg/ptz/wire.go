package ptz

// Tool names of the camera façade.
const (
	ToolGetPosition  = "get_position"
	ToolMoveAbsolute = "move_absolute"
	ToolMoveRelative = "move_relative"
	ToolTakeSnapshot = "take_snapshot"
	ToolStopMovement = "stop_movement"
)

// Reply status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is the body of POST /mcp.
type Request struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

// MoveParams are the params of move_absolute and move_relative.
type MoveParams struct {
	Pan  *float64 `json:"pan"`
	Tilt *float64 `json:"tilt"`
	Zoom *float64 `json:"zoom"`
}

// PositionReply answers get_position. Exactly one of the pose fields or
// Error is set.
type PositionReply struct {
	Pan   *float64 `json:"pan,omitempty"`
	Tilt  *float64 `json:"tilt,omitempty"`
	Zoom  *float64 `json:"zoom,omitempty"`
	Error string   `json:"error,omitempty"`
}

// StatusReply answers move_absolute, move_relative, stop_movement and
// take_snapshot.
type StatusReply struct {
	Status      string `json:"status,omitempty"`
	Message     string `json:"message,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	Error       string `json:"error,omitempty"`
}
