package harness

import "os"

// WriteEnvFile writes contents to path, used by the docker adapter to
// pass an environment overlay via --env-file instead of inline -e flags.
func WriteEnvFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o600)
}
