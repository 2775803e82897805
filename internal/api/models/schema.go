package models

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed create_trade.schema.json
var createTradeSchemaJSON string

var createTradeSchema = jsonschema.MustCompileString("create_trade.schema.json", createTradeSchemaJSON)

// ValidateCreateTrade checks the shape of a create request body
func ValidateCreateTrade(body []byte) *HTTPError {
	if len(bytes.TrimSpace(body)) == 0 {
		return ErrBadRequest("Request body is required")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return ErrBadRequest("Invalid JSON body")
	}
	if _, err := dec.Token(); err != io.EOF {
		return ErrBadRequest("Invalid JSON body")
	}

	if err := createTradeSchema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return ErrBadRequest("Invalid request body")
		}
		leaf := verr
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		field := strings.TrimPrefix(leaf.InstanceLocation, "/")
		field = strings.ReplaceAll(field, "/", ".")
		message := "Invalid request body: " + leaf.Message
		if field != "" {
			message = "Invalid " + field + ": " + leaf.Message
		}
		return NewHTTPError(http.StatusBadRequest, ErrValidationFailed, message).WithField(field)
	}
	return nil
}
