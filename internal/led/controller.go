package led

// Driver abstracts torch LED hardware across boards.
// Implementations handle board-specific LED naming and claiming.
type Driver interface {
	// Name returns the board-specific LED identifier (e.g. "white:flash").
	Name() string

	// Available reports whether the board exposes a torch LED at all.
	Available() bool

	// Open claims the LED for exclusive use. A second Open fails until the
	// returned Output is closed.
	Open() (Output, error)
}

// Output is an open, exclusive claim on the torch LED.
type Output interface {
	// Set drives the LED fully on or off.
	Set(on bool) error

	// Close gives the claim back to the driver.
	Close() error
}
