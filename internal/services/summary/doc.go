// Package summary generates transcript summaries through an OpenAI
// compatible chat completion API. Summarization is opt-in per run and is
// skipped entirely when no API key is configured.
package summary
