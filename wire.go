package livecache

type (
	// ReadResponse is the payload returned by HandleRead and HandleWrite:
	// one entry snapshot. Value is omitted when the entry holds none.
	ReadResponse[T any] struct {
		Key     string `json:"key"`
		State   State  `json:"state"`
		Value   *T     `json:"value,omitempty"`
		Version uint64 `json:"version"`
		Error   string `json:"error,omitempty"`
	}

	// WriteRequest is the payload accepted by HandleWrite.
	WriteRequest[T any] struct {
		Key   string `json:"key"`
		Value T      `json:"value"`
	}

	// EvictRequest is the payload accepted by HandleEvict.
	EvictRequest struct {
		Key string `json:"key"`
	}

	EvictResponse struct {
		Key     string `json:"key"`
		Evicted bool   `json:"evicted"`
	}

	// StateResponse is the payload returned by HandleState.
	StateResponse struct {
		Key     string `json:"key"`
		State   State  `json:"state"`
		Version uint64 `json:"version"`
	}

	// ChangeEvent is the JSON shape of one committed transition, suitable
	// for streaming to downstream observers (see cmd/proxyd for an SSE
	// bridge built on it).
	ChangeEvent[T any] struct {
		Key      string `json:"key"`
		OldState State  `json:"oldState"`
		State    State  `json:"state"`
		OldValue *T     `json:"oldValue,omitempty"`
		Value    *T     `json:"value,omitempty"`
		Version  uint64 `json:"version"`
		Error    string `json:"error,omitempty"`
	}
)

// NewChangeEvent converts a bus event into its wire shape.
func NewChangeEvent[T any](ev Event[T]) ChangeEvent[T] {
	ce := ChangeEvent[T]{
		Key:      ev.Key,
		OldState: ev.OldState,
		State:    ev.State,
		Version:  ev.Version,
	}
	if ev.OldHasValue {
		old := ev.OldValue
		ce.OldValue = &old
	}
	if ev.HasValue {
		value := ev.Value
		ce.Value = &value
	}
	if ev.Err != nil {
		ce.Error = ev.Err.Error()
	}
	return ce
}

func newReadResponse[T any](snap Entry[T]) ReadResponse[T] {
	resp := ReadResponse[T]{
		Key:     snap.Key,
		State:   snap.State,
		Version: snap.Version,
	}
	if snap.HasValue {
		value := snap.Value
		resp.Value = &value
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	return resp
}
