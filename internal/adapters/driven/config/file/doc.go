// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem under the docqa home
// directory (~/.docqa, or $DOCQA_HOME).
//
// Adapters:
//   - ConfigStore: TOML-based settings storage
//   - PromptStore: user-editable answer prompt templates
package file
