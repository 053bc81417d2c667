package main

func histogram(x int32) int32 {
	counts := map[int32]int32{}
	counts[x]++
	return counts[x]
}

func main() {}
