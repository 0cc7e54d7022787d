package core

// RepoConfig represents the structure of the .code-mender.yml file.
type RepoConfig struct {
	// Custom instructions appended to every suggestion prompt.
	CustomInstructions []string `yaml:"custom_instructions"`

	// High-performance exclusion of entire directories by name.
	// Example: ["dist", "build", "docs"]
	ExcludeDirs []string `yaml:"exclude_dirs"`

	// Exclusion of files based on their extension.
	// The leading dot is optional. Example: [".md", "lock", ".log"]
	ExcludeExts []string `yaml:"exclude_exts"`

	// Tools restricts analysis to the named lint tools. Empty means every
	// configured tool for the file's language runs.
	Tools []string `yaml:"tools"`
}

// DefaultRepoConfig returns a config with default values.
func DefaultRepoConfig() *RepoConfig {
	return &RepoConfig{
		CustomInstructions: []string{},
		ExcludeDirs:        []string{},
		ExcludeExts:        []string{},
		Tools:              []string{},
	}
}
