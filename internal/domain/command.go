package domain

// CommandType names a bridge operation on the wire.
type CommandType string

const (
	CmdGetActiveFile  CommandType = "get_active_file"
	CmdSetFile        CommandType = "set_file"
	CmdDrawCircle     CommandType = "draw_circle"
	CmdDrawRectangle  CommandType = "draw_rectangle"
	CmdGetElements    CommandType = "get_elements"
	CmdGetElementByID CommandType = "get_element_by_id"
)

// Command is a request sent to the editor. The set of implementations is closed:
// only the variants declared in this file satisfy it.
type Command interface {
	Type() CommandType
	isCommand()
}

// GetActiveFile asks the editor which document is focused.
type GetActiveFile struct{}

// SetFile asks the editor to open (and focus) a document.
type SetFile struct {
	FilePath string
}

// DrawCircle adds a circle to a document.
type DrawCircle struct {
	FilePath string
	Circle   Circle
}

// DrawRectangle adds a rectangle to a document.
type DrawRectangle struct {
	FilePath  string
	Rectangle Rectangle
}

// GetElements lists every element of a document.
type GetElements struct {
	FilePath string
}

// GetElementByID fetches a single element of a document.
type GetElementByID struct {
	FilePath string
	ID       string
}

func (GetActiveFile) Type() CommandType  { return CmdGetActiveFile }
func (SetFile) Type() CommandType        { return CmdSetFile }
func (DrawCircle) Type() CommandType     { return CmdDrawCircle }
func (DrawRectangle) Type() CommandType  { return CmdDrawRectangle }
func (GetElements) Type() CommandType    { return CmdGetElements }
func (GetElementByID) Type() CommandType { return CmdGetElementByID }

func (GetActiveFile) isCommand()  {}
func (SetFile) isCommand()        {}
func (DrawCircle) isCommand()     {}
func (DrawRectangle) isCommand()  {}
func (GetElements) isCommand()    {}
func (GetElementByID) isCommand() {}

// TargetOf returns the document a command is scoped to ("" for get_active_file).
func TargetOf(cmd Command) string {
	switch c := cmd.(type) {
	case SetFile:
		return c.FilePath
	case DrawCircle:
		return c.FilePath
	case DrawRectangle:
		return c.FilePath
	case GetElements:
		return c.FilePath
	case GetElementByID:
		return c.FilePath
	default:
		return ""
	}
}

// ElementIDOf returns the element id a command refers to, if any.
func ElementIDOf(cmd Command) string {
	switch c := cmd.(type) {
	case DrawCircle:
		return c.Circle.ID
	case DrawRectangle:
		return c.Rectangle.ID
	case GetElementByID:
		return c.ID
	default:
		return ""
	}
}
