// Package rag implements the retrieval-augmented answering pipeline.
//
// This package provides:
//   - Overlapping fixed-size chunking of document text
//   - An in-memory cosine-similarity vector index with snapshots
//   - Owner-scoped retrieval with optional LLM reranking
//   - Grounded answer assembly with source citations
//   - Document lifecycle management (add, replace, remove, persist)
//
// Embedding and generation are reached through the Embedder and Generator
// interfaces so the pipeline can be exercised without a live provider.
package rag
