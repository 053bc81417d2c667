package main

// Signed and unsigned additions share the same lowering path.
func add(a, b int16, carry uint16) uint32 {
	partial := int32(a) + int32(b)
	return uint32(uint16(partial)) + uint32(carry)
}

func main() {}
