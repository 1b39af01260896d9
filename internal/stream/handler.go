package stream

// Handler adapts a session's event channel to callbacks. Nil callbacks are skipped.
type Handler struct {
	OnChunk    func(fragment, text string)
	OnComplete func(text string)
	OnFailure  func(err error, partial string)
}

// Dispatch delivers events until the channel is closed
func (h Handler) Dispatch(events <-chan Event) {
	for ev := range events {
		switch ev.Kind {
		case EventChunk:
			if h.OnChunk != nil {
				h.OnChunk(ev.Fragment, ev.Text)
			}
		case EventDone:
			if h.OnComplete != nil {
				h.OnComplete(ev.Text)
			}
		case EventFailed:
			if h.OnFailure != nil {
				h.OnFailure(ev.Err, ev.Text)
			}
		}
	}
}
