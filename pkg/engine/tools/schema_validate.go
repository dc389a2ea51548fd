package tools

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"zagent/pkg/engine/api"
)

// ValidateArgs checks args against the tool's own JSON schema before
// dispatch. This is additive: it guards against malformed tool-call
// arguments and never substitutes for the Loop's anti-repetition or
// mutation-gating rules.
func ValidateArgs(tool Tool, args api.Args) error {
	schema := tool.Schema()
	if schema.Parameters == nil {
		return nil
	}

	schemaBytes, err := json.Marshal(schema.Parameters)
	if err != nil {
		return fmt.Errorf("marshal schema for %s: %w", tool.Name(), err)
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return fmt.Errorf("unmarshal schema for %s: %w", tool.Name(), err)
	}

	argsBytes, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args for %s: %w", tool.Name(), err)
	}
	var argsDoc any
	if err := json.Unmarshal(argsBytes, &argsDoc); err != nil {
		return fmt.Errorf("unmarshal args for %s: %w", tool.Name(), err)
	}

	c := jsonschema.NewCompiler()
	resourceName := tool.Name() + ".json"
	if err := c.AddResource(resourceName, schemaDoc); err != nil {
		return fmt.Errorf("add schema resource for %s: %w", tool.Name(), err)
	}
	compiled, err := c.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", tool.Name(), err)
	}
	if err := compiled.Validate(argsDoc); err != nil {
		return fmt.Errorf("tool %s: invalid arguments: %w", tool.Name(), err)
	}
	return nil
}
