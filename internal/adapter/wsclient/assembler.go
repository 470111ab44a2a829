package wsclient

import "bytes"

// assembler joins fragments into whole messages.
type assembler struct {
	buf    bytes.Buffer
	typ    MessageType
	active bool
}

// push adds f and returns the completed message once f is final.
func (a *assembler) push(f Fragment) (MessageType, []byte, bool) {
	if !a.active {
		a.active = true
		a.typ = f.Type
		a.buf.Reset()
	}
	a.buf.Write(f.Data)
	if !f.Final {
		return 0, nil, false
	}
	a.active = false
	out := make([]byte, a.buf.Len())
	copy(out, a.buf.Bytes())
	a.buf.Reset()
	return a.typ, out, true
}
