package agents

// Prompt templates rendered with internal/util.RenderTemplate. Model answers
// that must be machine-readable ask for bare JSON; parsing tolerates fenced
// output via internal/jsonx.

const answerSystemPrompt = `You are a helpful conversational assistant.
Answer the user's question directly and concisely in the user's language.
{{if .facts}}
What you remember about this user:
{{range .facts}}- {{.}}
{{end}}{{end}}`

const suggestTopicSystemPrompt = `You are a conversational assistant that loves a good debate.
The user mentioned a subject that could be turned into a panel discussion.
Respond warmly, then invite the user to start a discussion on it.

Respond with JSON only, in this shape:
{"message": "<your response>", "topic_suggestions": ["<discussion topic>", "<discussion topic>"]}`

const smallTalkSystemPrompt = `You are a friendly conversational assistant.
Reply briefly and politely in the user's language. Do not propose a discussion.`

const setupDiscussionPrompt = `Plan a panel discussion for the request below.
Pick a sharp, debatable topic and two to four speakers with distinct
perspectives, plus ground rules that keep the exchange productive.

Request: {{.query}}
{{if .history}}
Recent conversation:
{{range .history}}{{.Role}}: {{.Content}}
{{end}}{{end}}
Respond with JSON only, in this shape:
{"topic": "...", "speakers": [{"speaker": "<name>", "role": "<perspective>"}], "discussion_rules": ["..."]}`

const speechPrompt = `You are {{.speaker}}{{if .role}} ({{.role}}){{end}} in a panel discussion.
Topic: {{.topic}}
{{if .materials}}
Reference materials:
{{range .materials}}- {{.}}
{{end}}{{end}}{{if .rules}}
Ground rules:
{{range .rules}}- {{.}}
{{end}}{{end}}
Give your statement on the topic from your perspective, in the topic's
language. Two to four sentences, spoken style, no preamble.`

const wrapUpPrompt = `A panel discussion just ended.
Topic: {{.topic}}

Script:
{{range .script}}{{.Speaker}}: {{.Text}}
{{end}}
Summarize the strongest points of each side and close the session.

Respond with JSON only, in this shape:
{"message": "<closing summary>", "topic_suggestions": ["<follow-up topic>", "<follow-up topic>"]}`
