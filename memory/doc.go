// Package memory is the long-term personal memory behind retrieval-augmented chat.
//
// Memories are short facts about the user ("My name is Shibin", "I prefer
// aisle seats") embedded as vectors. The store is append-only and shared by
// every session in the process.
//
// Architecture:
//   - Store: vector storage backend (chromem-go, optionally persisted to disk)
//   - Embedder: text-to-vector conversion (feature hashing offline, ONNX MiniLM
//     with the onnx build tag, either wrapped in a ristretto cache)
//   - Manager: top-k retrieval formatted for prompts, chunked writes
//
// Integration:
//   - the retrieve step reads relevant memories before the model answers
//   - the store step decides whether the latest user message is worth keeping
//     and writes it through Manager.Remember
package memory
