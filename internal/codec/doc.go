// Package codec holds the vocabulary shared by the decode and encode paths:
// stream formats, session geometry, caps validation, the error taxonomy and
// the collaborator interfaces behind which the hardware codec, the display
// and the downstream consumer live.
package codec
