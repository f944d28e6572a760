// ticketd is the support ticket intake and triage service.
//
//	@title       SmartDesk Ticket API
//	@version     1.0
//	@description Submit, track, and triage IT support tickets. Classification
//	@description and AI reply drafting run inline; when their inputs are
//	@description missing the service degrades to default labels and an
//	@description offline placeholder instead of failing requests.
//
//	@BasePath /
package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/smartdesk-ai/go-ticket-backend/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}
