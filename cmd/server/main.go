// Package main provides the plugin HTTP server entrypoint. It exposes
// the data-source operations (init, verify, get-tasks, get-data) over
// JSON, with get-data streamed as NDJSON.
package main

import (
	"net/http"
	"strconv"

	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/server"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/platform"
)

func main() {
	log := platform.InitLogger()

	port := strconv.Itoa(platform.GetEnvInt("PORT", 50051))

	log.Info().Str("port", port).Msg("starting AWS HyperBilling cost datasource plugin")
	if err := http.ListenAndServe(":"+port, server.New(log).Router()); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
