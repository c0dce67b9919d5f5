package common

import (
	"fmt"

	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner followed by one line per detail
func PrintBanner(version string, details ...string) {
	banner.Print("uiflow", version)
	for _, d := range details {
		fmt.Printf("  %s\n", d)
	}
	if len(details) > 0 {
		fmt.Println()
	}
}
