package providers

// Provider is the base interface shared by all external API adapters.
type Provider interface {
	Initialize() error
	Cleanup() error
}
