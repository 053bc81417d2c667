package main

func triangle(n int32) int32 {
	var sum int32
	for i := int32(0); i < n; i++ {
		for j := int32(0); j <= i; j++ {
			sum += j
		}
	}
	return sum
}

func main() {}
