// Package llm extracts structured data from free text with a chat-completion
// model: payer names from transfer descriptions and operator intents from
// escalation replies. It talks to OpenAI-compatible endpoints (OpenRouter by
// default) with retry logic, rate limiting and response caching.
package llm
