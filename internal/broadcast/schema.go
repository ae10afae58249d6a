// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package broadcast

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/holomush/warden/internal/auth"
)

// SchemaID is the $id of the SyncEvent schema.
const SchemaID = "https://holomush.dev/schemas/sync-event.schema.json"

var (
	compileOnce sync.Once
	compiled    *jschema.Schema
	compileErr  error
)

// GenerateSchema reflects the JSON Schema of auth.SyncEvent.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{DoNotReference: true}
	schema := r.Reflect(&auth.SyncEvent{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Warden Sync Event"
	schema.Description = "Login or logout announcement published on the session sync channel"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").Wrap(err)
	}
	return data, nil
}

func compiledSchema() (*jschema.Schema, error) {
	compileOnce.Do(func() {
		data, err := GenerateSchema()
		if err != nil {
			compileErr = err
			return
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			compileErr = oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource(SchemaID, doc); err != nil {
			compileErr = oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
			return
		}
		compiled, compileErr = c.Compile(SchemaID)
		if compileErr != nil {
			compileErr = oops.Code("SCHEMA_COMPILE_FAILED").Wrap(compileErr)
		}
	})
	return compiled, compileErr
}

// ValidatePayload checks a raw payload against the SyncEvent schema.
func ValidatePayload(payload []byte) error {
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return oops.Code("SYNC_EVENT_MALFORMED").Wrap(err)
	}
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return oops.Code("SYNC_EVENT_INVALID").Wrap(err)
	}
	return nil
}

// Decode validates payload and parses it into a SyncEvent.
func Decode(payload []byte) (auth.SyncEvent, error) {
	if err := ValidatePayload(payload); err != nil {
		return auth.SyncEvent{}, err
	}
	var event auth.SyncEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return auth.SyncEvent{}, oops.Code("SYNC_EVENT_MALFORMED").Wrap(err)
	}
	return event, nil
}

// Encode serializes event for the wire.
func Encode(event auth.SyncEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, oops.Code("SYNC_EVENT_ENCODE_FAILED").Wrap(err)
	}
	return data, nil
}
