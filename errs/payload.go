package errs

import "errors"

// Payload is the serialized form of an Error. Services return it inside
// their response structs instead of failing the request, so the calling
// adapter can rebuild the same kind on its side.
type Payload struct {
	Kind    Kind              `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ToPayload converts err into a Payload. Unclassified errors lose their
// message so internal details never leave the module.
func ToPayload(err error) *Payload {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return &Payload{Kind: KindInternal, Message: "internal error"}
	}
	return &Payload{Kind: e.Kind, Message: e.Message, Fields: e.Fields}
}

// Err rebuilds the classified error carried by p.
func (p *Payload) Err() error {
	if p == nil {
		return nil
	}
	kind := p.Kind
	if kind == "" {
		kind = KindInternal
	}
	return &Error{Kind: kind, Message: p.Message, Fields: p.Fields}
}
