// Command config-schema-generator regenerates schema/mesh.embedded.schema.json
// from the config.Config struct. Run it from the module root with
// `go run ./tools/config-schema-generator`.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/grovetools/mesh/config"
	"github.com/invopop/jsonschema"
)

func main() {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:            true,
	}

	s := reflector.Reflect(&config.Config{})
	s.ID = "https://github.com/grovetools/mesh/config/config"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal schema: %v\n", err)
		os.Exit(1)
	}

	out := "schema/mesh.embedded.schema.json"
	if len(os.Args) > 1 {
		out = os.Args[1]
	}
	if err := os.WriteFile(out, append(data, '\n'), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", out)
}
