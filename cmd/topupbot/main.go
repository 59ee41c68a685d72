// Command topupbot runs the balance top-up Telegram bot.
package main

import (
	"log"

	corecmd "github.com/m3rciful/topupbot/core/cmd"
	"github.com/m3rciful/topupbot/internal/app"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar: "CONFIG_PATH",
		DotEnvFiles:  []string{".env"},
		LoadConfig:   app.LoadConfig,
		Bootstrap:    app.Bootstrap,
	})
	if err != nil {
		log.Fatalf("topupbot: %v", err)
	}
}
