package rag

import "fmt"

// answerPromptTemplate frames the retrieved history for the model. The note
// about think tags keeps reasoning models from leaking their scratchpad into
// the saved history.
const answerPromptTemplate = `You are a helpful assistant. Use the conversation history below to answer the user's question. If the history is not relevant, answer from your own knowledge.

Conversation history:
%s

Question: %s

Answer directly and concisely. Do not include <think> blocks or internal reasoning in your reply.`

// summaryPromptTemplate condenses oversized retrieved history before it is
// handed to the answer prompt.
const summaryPromptTemplate = `Summarize the following conversation history. Keep every fact, name, number and decision that could matter for answering follow-up questions. Be concise.

%s

Summary:`

// BuildAnswerPrompt assembles the final prompt from the (possibly summarized)
// history block and the user's question.
func BuildAnswerPrompt(history, question string) string {
	return fmt.Sprintf(answerPromptTemplate, history, question)
}

// BuildSummaryPrompt wraps retrieved history in the summarization instruction.
func BuildSummaryPrompt(history string) string {
	return fmt.Sprintf(summaryPromptTemplate, history)
}
