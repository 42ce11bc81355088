package driven

// ConfigStore holds raw configuration values under dot-notation keys
// ("retrieval.top_k"). Typing and validation happen in the settings service.
type ConfigStore interface {
	// Get returns the stored value and whether the key is set.
	Get(key string) (any, bool)

	// Set stores a value and persists it immediately.
	Set(key string, value any) error

	// Delete removes a value so its default applies again.
	// Deleting an absent key is not an error.
	Delete(key string) error

	// Path describes where the configuration lives.
	Path() string
}
