// Package summarizer writes a free-text overview of the files matched to an issue.
//
// A Summarizer is anything that turns a prompt into text; OpenAIClient talks
// to an OpenAI-compatible /chat/completions endpoint. Overviewer builds the
// prompt from the issue and the retrieved files, source files first, and
// bounds it to a character budget. Failures never escape Overview; they
// become the Placeholder text.
package summarizer
