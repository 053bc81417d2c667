package main

func first(xs []int32) int32 {
	return xs[0]
}

func main() {}
