// Command migrate runs one-shot data migrations. SQL migrations are read
// from the configured migrations directory; Go migrations can be added by
// building a variant of this command that calls cli.Register before
// cli.Execute.
package main

import "github.com/aqasim81/data-migration-runner/internal/cli"

func main() {
	cli.Execute()
}
