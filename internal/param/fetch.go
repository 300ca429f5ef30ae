package param

import (
	"context"
	"fmt"
)

type Fetcher interface {
	Fetch(context.Context, string) (string, error)
}

// StaticFetcher serves parameters from memory.
type StaticFetcher map[string]string

func (f StaticFetcher) Fetch(_ context.Context, path string) (string, error) {
	v, ok := f[path]
	if !ok {
		return "", fmt.Errorf("parameter %q not found", path)
	}
	return v, nil
}
