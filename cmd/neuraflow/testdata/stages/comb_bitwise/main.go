package main

// Mixes and/or/xor masks with shifts.
func mix(mask, data uint16) uint16 {
	andVal := mask & data
	orVal := mask | data
	xorVal := mask ^ data
	return (andVal << 2) ^ (orVal >> 1) ^ xorVal
}

func main() {}
