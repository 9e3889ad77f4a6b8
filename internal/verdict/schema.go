package verdict

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/invopop/jsonschema"
)

// SchemaName identifies the result schema in provider requests
const SchemaName = "evaluation_result"

var (
	responseOnce   sync.Once
	responseSchema json.RawMessage
	responseErr    error
)

// ResponseSchema returns the provider-facing JSON schema of
// domain.EvaluationResult. It describes shape only: every field required,
// no additional properties. Range checks stay in Parse because providers
// accept different subsets of JSON Schema.
func ResponseSchema() (json.RawMessage, error) {
	responseOnce.Do(func() {
		reflector := jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
			ExpandedStruct:            true,
		}
		schema := reflector.Reflect(&domain.EvaluationResult{})
		schema.Version = ""
		schema.ID = ""

		responseSchema, responseErr = json.Marshal(schema)
		if responseErr != nil {
			responseErr = fmt.Errorf("marshal response schema: %w", responseErr)
		}
	})
	return responseSchema, responseErr
}
