package documents

import "errors"

var (
	ErrNotFound   = errors.New("document not found")
	ErrDuplicate  = errors.New("unique constraint violated")
	ErrConflict   = errors.New("write conflict")
	ErrInvalidKey = errors.New("invalid document key")
)

// Kind es el conjunto cerrado de fallas que el store expone a los handlers.
type Kind int

const (
	KindOther Kind = iota
	KindNotFound
	KindDuplicate
	KindConflict
	KindInvalidKey
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindDuplicate:
		return "duplicate"
	case KindConflict:
		return "conflict"
	case KindInvalidKey:
		return "invalid_key"
	default:
		return "other"
	}
}

// KindOf clasifica un error devuelto por cualquier adapter.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindOther
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDuplicate):
		return KindDuplicate
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidKey):
		return KindInvalidKey
	default:
		return KindOther
	}
}
