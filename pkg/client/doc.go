/*
Package client provides a Go client library for Loom's HTTP API.

The client package wraps Loom's HTTP surface (internal/httpapi) with a
convenient, idiomatic Go interface. It handles request/response
marshaling, error decoding, and provides type-safe methods for every
index operation the HTTP surface exposes.

# Architecture

The client provides a high-level interface to a single Loom node:

	┌──────────────────── APPLICATION CODE ──────────────────────┐
	│                                                              │
	│  import "github.com/cuemby/loom/pkg/client"                 │
	│                                                              │
	│  c := client.NewClient("http://127.0.0.1:8080")             │
	│  err := c.CreateIndex(ctx, "books", schema)                 │
	│                                                              │
	└──────────────────┬───────────────────────────────────────┘
	                   │
	┌──────────────────▼──── pkg/client ─────────────────────────┐
	│                                                              │
	│  ┌──────────────────────────────────────────────┐          │
	│  │           Client Wrapper                      │          │
	│  │  - One method per HTTP route                  │          │
	│  │  - JSON marshal/unmarshal                     │          │
	│  │  - Error envelope decoding                    │          │
	│  └──────────────────┬───────────────────────────┘          │
	│                     │                                        │
	│  ┌──────────────────▼───────────────────────────┐          │
	│  │         net/http.Client                       │          │
	│  │  - Plain HTTP/JSON, no TLS required           │          │
	│  │  - context.Context-scoped timeouts            │          │
	│  └──────────────────┬───────────────────────────┘          │
	└─────────────────────┼────────────────────────────────────┘
	                      │ HTTP (default port 8080)
	                      ▼
	                 Loom Node

# Core Features

Type Safety:
  - Strong typing for schema, document, and query payloads
  - Go structs instead of hand-built JSON
  - Compile-time safety, IDE autocomplete support

Error Handling:
  - Non-2xx responses decoded into *apiError with status and message
  - Transport errors wrapped with the failing method and path

# Usage

Creating a Client:

	import (
		"context"
		"log"
		"github.com/cuemby/loom/pkg/client"
	)

	c := client.NewClient("http://127.0.0.1:8080")
	name, version, err := c.Ping(context.Background())
	if err != nil {
		log.Fatal(err)
	}

# Index Operations

Creating an Index:

	fields := schema.New([]schema.Field{
		{Name: "title", Type: schema.FieldText, Options: schema.FieldOptions{Indexed: true, Stored: true}},
	})
	err := c.CreateIndex(ctx, "books", fields)

Checking Summary:

	summary, err := c.Summary(ctx, "books")
	fmt.Printf("opstamp: %d\n", summary.Opstamp)

Adding a Document:

	err := c.AddDocument(ctx, "books", json.RawMessage(`{"title":"moby dick"}`), true)

Searching:

	results, err := c.Search(ctx, "books", query.Search{
		Query: &query.Query{Term: &query.TermQuery{Field: "title", Value: "dick"}},
	})

Bulk Ingest:

	err := c.Bulk(ctx, "books", strings.NewReader(ndjsonLines))

# Integration Points

This package integrates with:

  - internal/httpapi: every method targets one of its routes
  - internal/query, internal/document, internal/schema: request/response types
  - cmd/loom: the CLI's `index` subcommands are thin wrappers over this client

# See Also

  - internal/httpapi for the exact request/response JSON shapes
*/
package client
