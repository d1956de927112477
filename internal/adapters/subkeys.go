package adapters

import (
	"os"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"gopkg.in/yaml.v3"
)

// LoadKnownSubkeys reads the known-subkeys mapping: authorized owner key
// id to the subkey ids delegated to sign on its behalf. A missing file
// is not an error and yields an empty mapping.
func LoadKnownSubkeys(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]string{}, nil
		}
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read known subkeys config").
			WithCause(err)
	}
	subkeys := map[string][]string{}
	if err := yaml.Unmarshal(data, &subkeys); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to parse known subkeys config").
			WithCause(err)
	}
	return subkeys, nil
}
