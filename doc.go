// Package tickerdesk hosts a conversational stock-price agent behind an
// authenticated streaming HTTP API.
//
// The service wires a chat-completion LLM provider, a market-data lookup, and
// a local semantic index over financial documents into a tool-calling agent.
// Callers receive the agent's reasoning, tool calls, tool results, and final
// answer as newline-delimited JSON events, flushed one at a time.
//
// # Quick Start
//
// Install:
//
//	go install github.com/tickerdesk/tickerdesk/cmd/tickerdesk@latest
//
// Create a configuration file:
//
//	llm:
//	  type: "openai"
//	  model: "gpt-4o-mini"
//	  api_key: "${OPENAI_API_KEY}"
//
//	knowledge:
//	  documents_dir: "./docs"
//	  index_dir: "./.tickerdesk-index"
//
//	auth:
//	  enabled: true
//	  region: "${AWS_REGION}"
//	  user_pool_id: "${COGNITO_USER_POOL_ID}"
//	  client_id: "${COGNITO_CLIENT_ID}"
//
// Build the document index and start the server:
//
//	tickerdesk index --config tickerdesk.yaml
//	tickerdesk serve --config tickerdesk.yaml
//
// Invoke the agent:
//
//	curl -N -H "Authorization: Bearer $TOKEN" \
//	  -d '{"input":{"prompt":"What is Amazon'\''s stock price now?"}}' \
//	  http://localhost:8080/invoke
//
// # Packages
//
//	pkg/server         HTTP surface and streaming relay
//	pkg/agent          tool-calling orchestrator
//	pkg/llms           LLM providers (OpenAI-compatible, Anthropic, Gemini)
//	pkg/tools          agent tool adapters
//	pkg/market         market-data client
//	pkg/rag            document extraction, chunking, and search
//	pkg/vector         vector store backends (chromem, Qdrant)
//	pkg/embedder       embedding providers
//	pkg/auth           JWT verification against a JWKS endpoint
//	pkg/config         YAML configuration with env expansion and live reload
//	pkg/observability  metrics and tracing
package tickerdesk
