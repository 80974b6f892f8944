package stage

import "context"

// Stager is the port for marking a file as staged in version control.
type Stager interface {
	// Stage records path in the index. It must return when ctx is done.
	Stage(ctx context.Context, path string) error
}
