package main

import "github.com/andresmejia3/watchlist/cmd"

func main() {
	cmd.Execute()
}
