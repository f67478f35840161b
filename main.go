package main

import "github.com/idiom-bytes/canada-spends-municipality-scraper/cmd"

func main() {
	cmd.Execute()
}
