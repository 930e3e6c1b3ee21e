package domain

// DefaultColor is applied to shapes drawn without an explicit color.
const DefaultColor = "#000000"

// Circle is the payload of a draw_circle command.
type Circle struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
	Color  string  `json:"color"`
}

// Rectangle is the payload of a draw_rectangle command. X and Y are the top-left corner.
type Rectangle struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Color  string  `json:"color"`
}

// ElementKind distinguishes the shapes an Element can carry.
type ElementKind string

const (
	KindCircle    ElementKind = "circle"
	KindRectangle ElementKind = "rectangle"
	KindUnknown   ElementKind = "unknown"
)

// Element is a shape as reported back by the editor. Only the fields of its
// kind are set.
type Element struct {
	ID     string   `json:"id"`
	Type   string   `json:"type,omitempty"`
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	Color  string   `json:"color,omitempty"`
	Radius *float64 `json:"radius,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
}

// Kind reports the element's shape. An explicit "type" from the editor wins,
// otherwise the shape is inferred from which dimensions are present.
func (e Element) Kind() ElementKind {
	switch e.Type {
	case string(KindCircle):
		return KindCircle
	case string(KindRectangle):
		return KindRectangle
	}
	switch {
	case e.Radius != nil:
		return KindCircle
	case e.Width != nil && e.Height != nil:
		return KindRectangle
	default:
		return KindUnknown
	}
}

// CircleElement converts a circle payload into its element form.
func CircleElement(c Circle) Element {
	r := c.Radius
	return Element{ID: c.ID, Type: string(KindCircle), X: c.X, Y: c.Y, Color: c.Color, Radius: &r}
}

// RectangleElement converts a rectangle payload into its element form.
func RectangleElement(r Rectangle) Element {
	w, h := r.Width, r.Height
	return Element{ID: r.ID, Type: string(KindRectangle), X: r.X, Y: r.Y, Color: r.Color, Width: &w, Height: &h}
}
