package main

func fact(n int32) int32 {
	if n <= 1 {
		return 1
	}
	return n * fact(n-1)
}

func main() {}
