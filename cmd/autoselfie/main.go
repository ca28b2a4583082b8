// Command autoselfie runs an interactive selfie capture session on a local camera.
package main

func main() {
	Execute()
}
