// RAGFlow - Retrieval-and-Orchestration Core for Document QA in Go
//
// RAGFlow is the retrieval-and-orchestration core of a multimodal document
// question-answering service. Given a natural-language query it plans
// sub-queries, executes hybrid (dense + lexical) search against a document
// store, optionally supplements sparse results from the web, synthesizes a
// cited answer and validates it through two independent quality gates with
// bounded regeneration.
//
// # Quick Start
//
// Install the package:
//
//	go get github.com/smallnest/ragflow
//
// Basic example:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//
//		"github.com/tmc/langchaingo/embeddings"
//		"github.com/tmc/langchaingo/llms/openai"
//
//		"github.com/smallnest/ragflow/model"
//		"github.com/smallnest/ragflow/pipeline"
//		"github.com/smallnest/ragflow/store"
//	)
//
//	func main() {
//		ctx := context.Background()
//
//		client, _ := model.NewOpenAIClient("")
//		llm, _ := openai.New()
//		embedder, _ := embeddings.NewEmbedder(llm)
//		docs, _ := store.NewPostgresStore(ctx, "postgres://localhost/ragflow")
//
//		runner, _ := pipeline.NewRunner(pipeline.DefaultConfig(), client, docs, embedder)
//
//		result, _ := runner.Run(ctx, "engine oil change interval")
//		fmt.Println(result.Answer)
//	}
//
// # Package Structure
//
// graph/
// Generic typed state-machine engine: nodes, conditional edges, merge
// schemas, step budgets, streaming and checkpoint listeners.
//
// pipeline/
// The turn orchestrator: router, context resolver, planner, subtask
// executor, dynamic filter generator, synthesizer, hallucination checker
// and answer grader assembled into one state graph over TurnState.
//
// retriever/
// Hybrid dense+lexical retrieval with Reciprocal Rank Fusion, keyword
// extraction for Korean and English, and a bounded search worker pool.
//
// store/
// Document model, filters and the store contract; a Postgres adapter
// (pgvector + tsquery through pgx) and an in-memory store for tests.
//
// model/
// LLM contract: free-form generation plus generic schema-constrained
// structured output; an OpenAI adapter binds JSON response format.
//
// tool/
// External collaborators: Tavily web search with daily quota and result
// cache, plus an HTML page fetcher.
//
// checkpoint/
// Per-turn state snapshots keyed by run id: memory, Redis and SQLite.
//
// log/
// Simple logging utilities with a golog-backed leveled logger.
//
// # Configuration
//
// Behavior is tuned through pipeline.Config (subtask and retry caps,
// top-k, RRF constant, quality thresholds, routing and web toggles, turn
// deadline). Adapters read their credentials from the environment:
//
//   - OPENAI_API_KEY: OpenAI API key for generation and embeddings
//   - TAVILY_API_KEY: web-search API key for the optional fallback
//   - DATABASE_URL: Postgres connection string for the document store
package ragflow // import "github.com/smallnest/ragflow"
