package httpapi

import (
	"embed"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/gin-gonic/gin"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

type schemas struct {
	createRequest *gojsonschema.Schema
	editRequest   *gojsonschema.Schema
	commitFiles   *gojsonschema.Schema
}

func loadSchema(name string) (*gojsonschema.Schema, error) {
	data, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create schema %s: %w", name, err)
	}
	return schema, nil
}

func loadSchemas() (*schemas, error) {
	var (
		s   schemas
		err error
	)
	if s.createRequest, err = loadSchema("create_request.json"); err != nil {
		return nil, err
	}
	if s.editRequest, err = loadSchema("edit_request.json"); err != nil {
		return nil, err
	}
	if s.commitFiles, err = loadSchema("commit_files.json"); err != nil {
		return nil, err
	}
	return &s, nil
}

// bindValidated reads the JSON body, checks it against schema and then
// decodes it into dst.
func bindValidated(c *gin.Context, schema *gojsonschema.Schema, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBody))
	if err != nil {
		return badRequest("body", err.Error())
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return badRequest("body", "malformed JSON")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		field := ""
		for _, desc := range result.Errors() {
			if field == "" {
				field = desc.Field()
			}
			msgs = append(msgs, desc.String())
		}
		return &common.ValidationError{Reason: common.InvalidField, Field: field, Detail: strings.Join(msgs, "; ")}
	}

	c.Request.Body = io.NopCloser(strings.NewReader(string(body)))
	if err := c.ShouldBindJSON(dst); err != nil {
		return badRequest("body", err.Error())
	}
	return nil
}
