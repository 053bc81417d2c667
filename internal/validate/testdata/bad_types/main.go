package main

func greet(name string) string {
	return name + "!"
}

func main() {}
