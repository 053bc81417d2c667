package main

func dot(a0, a1, b0, b1 int32) int32 {
	return a0*b0 + a1*b1
}

func clamp(x, lo, hi int16) int16 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func accumulate(n uint32) uint32 {
	var acc uint32
	for i := uint32(0); i < n; i++ {
		acc ^= i << 1
	}
	return acc
}

func main() {}
