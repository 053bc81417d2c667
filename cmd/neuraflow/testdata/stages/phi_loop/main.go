package main

func fib(n int32) int32 {
	a, b := int32(0), int32(1)
	for i := int32(0); i < n; i++ {
		a, b = b, a+b
	}
	return a
}

func main() {}
