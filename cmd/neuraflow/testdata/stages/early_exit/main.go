package main

func bounded(n, limit int32) int32 {
	var acc int32
	for i := int32(0); i < n; i++ {
		if acc > limit {
			break
		}
		acc += i * i
	}
	return acc
}

func main() {}
