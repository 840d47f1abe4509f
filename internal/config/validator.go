package config

// ValidatorConfig configures internal/validator's external-command rules:
// a named command template per check, e.g. "go-vet": ["go", "vet", "./..."].
type ValidatorConfig struct {
	ExternalCommands map[string][]string `yaml:"external_commands" json:"external_commands,omitempty"`
}
