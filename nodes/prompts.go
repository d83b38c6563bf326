package nodes

// DefaultSystemPrompt is the assistant's base instruction.
const DefaultSystemPrompt = `You are a helpful personal assistant for a user in Munich.
You can look up restaurants, parking, orders and weather with your tools, and you
remember personal facts the user has shared with you. Answer concisely. When you
use a tool, base your answer on its result. If you do not know, say so plainly.`

// RetrievedInfoNote introduces memories in the chat prompt.
const RetrievedInfoNote = "Relevant information retrieved for this query based on personal information:\n\n"

const evaluatePrompt = `You judge whether an assistant's answer satisfies a user's question.
Return result=true only if the answer substantively addresses the question.
Return result=false if the answer is a deflection such as "I don't know",
"I don't have access to real-time data", or asks the user to look it up elsewhere.`

const rewritePrompt = `Rewrite the user's latest question into a single self-contained web search query.
Resolve pronouns and references using the conversation so far.
Reply with the query only, no quotes and no explanation.`

const answerFromSearchPrompt = `Answer the user's latest question using only the search results below
and the conversation so far. Be concise and cite sources by URL when useful.
If the results do not contain the answer, say that you do not know.

Search results:

`

const storeDecisionPrompt = `You decide whether the user's message contains something worth remembering long term.

Store only personal facts about the user or preferences they state
(name, family, diet, likes and dislikes, home, work, routines).
Never store questions, requests, small talk or transient queries such as the weather.
Never store a fact that is already among the existing memories, even if worded differently;
set is_duplicate=true in that case.
When storing, rewrite the fact in a clean, concise third-person form,
for example "User's name is Shibin" or "User likes spicy food".`

const routerPrompt = `Classify the user's request into exactly one intent:

- chat: general conversation, questions, restaurants, parking, orders, weather
- store: the user shares a personal fact or preference to remember
- email: reading or sending email
- calendar: reading or changing the calendar
- agentic: the request spans more than one of the categories above,
  or asks for a multi-part report

Restaurant and parking requests are chat unless they also need email or calendar.
If unsure, choose chat.`

const planPrompt = `Plan a short report answering the user's request.
Return a topic and between one and five section titles, each covering a distinct part of the request.`

const writeSectionPrompt = `Write one section of a report in markdown.
Use your tools to gather facts. Start with the section title as a level-two heading.
Keep it under 200 words.`
