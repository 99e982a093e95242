// Package main generates the OpenAPI specification for the WanderSure API.
// It registers the shared route definitions against stub handlers, so the
// spec is produced without touching any real store or upstream service.
//
// Usage:
//
//	go run ./cmd/wandersure-openapi > openapi.json
//	go run ./cmd/wandersure-openapi -yaml > openapi.yaml
//	go run ./cmd/wandersure-openapi -output openapi.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/wandersure/wandersure-api/internal/http/routes"
	"github.com/wandersure/wandersure-api/internal/version"
)

func main() {
	outputFile := flag.String("output", "", "Output file path (default: stdout)")
	outputYAML := flag.Bool("yaml", false, "Output as YAML instead of JSON")
	baseURL := flag.String("base-url", "https://api.wandersure.example", "Base URL for the API server")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().Short())
		return
	}

	// A bare chi router is enough; nothing is served.
	router := chi.NewRouter()

	cfg := routes.NewHumaConfig(*baseURL)
	api := humachi.New(router, cfg)

	routes.Register(api, routes.StubHandlers())

	spec := api.OpenAPI()

	var data []byte
	var err error
	if *outputYAML {
		data, err = yaml.Marshal(spec)
	} else {
		data, err = json.MarshalIndent(spec, "", "  ")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error marshaling OpenAPI spec: %v\n", err)
		os.Exit(1)
	}

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "error writing to file: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "OpenAPI spec written to %s\n", *outputFile)
	} else {
		fmt.Print(string(data))
	}
}
