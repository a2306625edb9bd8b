// Package model defines the provider-agnostic language model interface used
// by graph stages, the intent classifier and the memory extractor, together
// with a deterministic mock for tests. Concrete providers live in the
// subpackages model/openai and model/anthropic.
package model
