package archive

// fieldBuilder appends little-endian fixed-width fields. Every record in
// the container is written through it so field widths are explicit at the
// call site.
type fieldBuilder struct {
	buf []byte
}

func newFieldBuilder(capacity int) *fieldBuilder {
	return &fieldBuilder{buf: make([]byte, 0, capacity)}
}

func (b *fieldBuilder) u16(v uint16) *fieldBuilder {
	b.buf = append(b.buf, byte(v), byte(v>>8))
	return b
}

func (b *fieldBuilder) u32(v uint32) *fieldBuilder {
	b.buf = append(b.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	return b
}

func (b *fieldBuilder) raw(p []byte) *fieldBuilder {
	b.buf = append(b.buf, p...)
	return b
}

func (b *fieldBuilder) bytes() []byte {
	return b.buf
}

func (b *fieldBuilder) len() int {
	return len(b.buf)
}
