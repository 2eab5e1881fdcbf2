package browser

// Boundary sentinels returned in place of a window when a scroll cannot move.
// The wording is part of the tool contract: the reading prompt tells the model
// to stop when it sees them.
const (
	EndOfPage = "END OF PAGE REACHED"
	TopOfPage = "TOP OF PAGE REACHED"
)

// Window is a read-only snapshot of one viewport's visible text. It is
// replaced wholesale on every navigation call; windows are never concatenated.
type Window struct {
	Text     string `json:"text"`
	AtTop    bool   `json:"at_top"`
	AtBottom bool   `json:"at_bottom"`
}

// Result is the outcome of a navigation or search operation: a window, a
// boundary sentinel, or neither (the zero value) when the operation faulted
// or found nothing. Exactly one of Window/Sentinel is set on success.
type Result struct {
	Window   *Window
	Sentinel string
}

// IsEmpty reports whether the result carries neither a window nor a sentinel.
func (r Result) IsEmpty() bool {
	return r.Window == nil && r.Sentinel == ""
}

// Text renders the result the way the reading tools hand it to the model:
// window text, sentinel text, or "" for a fault.
func (r Result) Text() string {
	if r.Window != nil {
		return r.Window.Text
	}
	return r.Sentinel
}
