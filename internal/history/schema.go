package history

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/job-metadata.schema.json
var jobMetadataSchema []byte

var compiledMetadataSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(jobMetadataSchema))
})

// validateMetadata checks a raw metadata document against the embedded schema.
func validateMetadata(doc []byte) error {
	schema, err := compiledMetadataSchema()
	if err != nil {
		return fmt.Errorf("load metadata schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("parse metadata: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		problems = append(problems, field+": "+desc.Description())
	}
	return fmt.Errorf("schema violations: %s", strings.Join(problems, "; "))
}
