/*
Copyright © 2024 Dean
*/
package main

import "shelf/cmd"

func main() {
	cmd.Execute()
}
