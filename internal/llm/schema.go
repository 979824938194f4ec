package llm

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema renders the JSON schema of T for embedding into prompts as the
// required output contract.
func Schema[T any]() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	b, err := json.MarshalIndent(reflector.Reflect(&v), "", "  ")
	if err != nil {
		panic(err)
	}
	return string(b)
}
