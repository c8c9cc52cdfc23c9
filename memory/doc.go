// Package memory keeps the conversation history of chat sessions.
//
// A session is a sequence of user and assistant turns identified by a session
// ID. The query path reads the most recent turns of a session, folds them into
// the prompt, and appends the new question and answer afterwards.
//
// Two stores are provided:
//
//   - SlidingWindowMemory keeps the last N turns of every session in process.
//   - SQLiteStore appends every turn to a SQLite table and survives restarts.
//
// Example:
//
//	mem := memory.NewSlidingWindowMemory(50)
//	_ = mem.Append(ctx, "session-1",
//		rag.ConversationTurn{Role: rag.RoleUser, Content: "What is Alpha?"},
//		rag.ConversationTurn{Role: rag.RoleAssistant, Content: "Alpha is ... [1]"},
//	)
//	history, _ := mem.Recent(ctx, "session-1", 5)
package memory
