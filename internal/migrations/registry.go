package migrations

// Default returns the migrations shipped with this build, in any order.
// NewRunner sorts them.
func Default() []Migration {
	return []Migration{
		Migration141(),
	}
}

// NewDefaultRunner builds a Runner over Default().
func NewDefaultRunner(opts ...RunnerOption) (*Runner, error) {
	return NewRunner(Default(), opts...)
}
