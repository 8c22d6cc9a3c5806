package harness

import (
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
)

const sqlAgentPrompt = `You are an agent designed to interact with a SQL database.
Given an input question, create a syntactically correct %[1]s query to run, then look at the results of the query and return the answer.
Unless the user specifies a specific number of examples they wish to obtain, always limit your query to at most %[2]d results.
You can order the results by a relevant column to return the most interesting examples in the database.
Never query for all the columns from a specific table, only ask for the relevant columns given the question.
You have access to tools for interacting with the database.
Only use the below tools. Only use the information returned by the below tools to construct your final answer.
You MUST double check your query before executing it. If you get an error while executing a query, rewrite the query and try again.

DO NOT make any DML statements (INSERT, UPDATE, DELETE, DROP etc.) to the database.

To start you should ALWAYS look at the tables in the database to see what you can query.
Do NOT skip this step.
Then you should query the schema of the most relevant tables.`

// PromptBuilder assembles model-ready inputs for the SQL agent.
type PromptBuilder struct {
	dialect string
	topK    int
}

func NewPromptBuilder(dialect string, topK int) *PromptBuilder {
	if dialect == "" {
		dialect = "SQLite"
	}
	if topK <= 0 {
		topK = 5
	}
	return &PromptBuilder{dialect: dialect, topK: topK}
}

// System renders the system prompt for the configured dialect and row limit.
func (b *PromptBuilder) System() string {
	return fmt.Sprintf(sqlAgentPrompt, b.dialect, b.topK)
}

// Build pairs the trimmed history with the tool specs. Messages are expected
// to be copies; their content is normalized in place.
func (b *PromptBuilder) Build(model, system string, messages []ports.Message, tools []ports.ToolSpec, meta map[string]string) ports.PromptInput {
	// Normalize newlines and trim whitespace to reduce prompt diffs
	norm := func(s string) string { return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n")) }

	for i := range messages {
		messages[i].Content = norm(messages[i].Content)
	}

	return ports.PromptInput{
		Model:    model,
		System:   norm(system),
		Messages: messages,
		Tools:    tools,
		Meta:     meta,
	}
}
