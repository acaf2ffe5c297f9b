package inlay

// HintKind classifies a hint. Values match the LSP InlayHintKind enum.
type HintKind int

const (
	// HintKindUnspecified is a hint without a particular kind.
	HintKindUnspecified HintKind = 0
	// HintKindType annotates an inferred type.
	HintKindType HintKind = 1
	// HintKindParameter annotates a parameter name.
	HintKindParameter HintKind = 2
)

func (k HintKind) String() string {
	switch k {
	case HintKindType:
		return "type"
	case HintKindParameter:
		return "parameter"
	default:
		return "hint"
	}
}

// Hint is a single inlay hint as produced by a Provider.
//
// Label and Tooltip may be filled in later by a Resolver; everything else is
// fixed once the provider returns it.
type Hint struct {
	Position     Position
	Label        string
	Tooltip      string
	Kind         HintKind
	PaddingLeft  bool
	PaddingRight bool

	// Data is private to the provider that produced the hint. It is handed
	// back unchanged on resolve.
	Data any
}

// HintList is the result of one ProvideInlayHints call.
//
// Providers that hold resources for the lifetime of the returned hints set
// Dispose; it is called exactly once when the hints are no longer needed.
type HintList struct {
	Hints   []Hint
	Dispose func()
}

// Release disposes the list. It is safe on a nil list.
func (l *HintList) Release() {
	if l == nil || l.Dispose == nil {
		return
	}

	dispose := l.Dispose
	l.Dispose = nil
	dispose()
}

// Len returns the number of hints in the list. It is safe on a nil list.
func (l *HintList) Len() int {
	if l == nil {
		return 0
	}

	return len(l.Hints)
}
