package invoker

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pitabwire/wiredriver/model"
)

// Build resolves a template into a request. Every {name} placeholder takes
// its value from pathParams, or from a string entry in params; entries used
// this way are left out of the JSON body. A placeholder repeated in the path
// takes the same value everywhere. params itself is not modified.
// GET and DELETE requests never carry a body, so their remaining params are
// dropped. A POST without params sends {}.
func Build(tmpl model.CommandTemplate, pathParams map[string]string, params map[string]any) (model.ResolvedRequest, error) {
	body := make(map[string]any, len(params))
	for k, v := range params {
		body[k] = v
	}

	path := tmpl.Path
	for _, name := range tmpl.Placeholders() {
		value, ok := pathParams[name]
		if !ok {
			raw, present := body[name]
			if !present {
				return model.ResolvedRequest{}, &model.MissingParameterError{CommandID: tmpl.ID, Parameter: name}
			}
			if value, ok = raw.(string); !ok {
				return model.ResolvedRequest{}, &model.InvalidParameterError{CommandID: tmpl.ID, Parameter: name, Type: fmt.Sprintf("%T", raw)}
			}
		}
		delete(body, name)
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(value))
	}

	req := model.ResolvedRequest{
		CommandID: tmpl.ID,
		Method:    tmpl.Method,
		Path:      path,
		Headers:   make(http.Header),
	}
	if !tmpl.CarriesBody() {
		return req, nil
	}

	req.Headers.Set("Content-Type", contentTypeJSON)
	if len(body) == 0 {
		req.Body = []byte("{}")
		return req, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return model.ResolvedRequest{}, fmt.Errorf("invoker: command %q: marshal body: %w", tmpl.ID, err)
	}
	req.Body = data
	return req, nil
}
