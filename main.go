/*
Copyright © 2025 ChinHongTan
*/

package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	releaseVersion = "1.4.2"
)

func main() {
	log.SetFlags(0)

	// Local deployments keep upstream credentials in a .env file; absence
	// is fine, flags and RFMAP_* variables still apply.
	_ = godotenv.Load()

	cfg := &Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
