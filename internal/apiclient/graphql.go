package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rangeos/engine/internal/apierror"
)

// GraphQLRequest is the body accepted by the resource graph endpoint.
type GraphQLRequest struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// GraphQLError is one entry of a GraphQL "errors" array.
// Path mixes field names (string) and list indices (float64).
type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

// GraphQL posts req to the GraphQL endpoint and decodes its data member into out.
// A response carrying an errors array is reported as a ResponseError so it
// normalizes like any other API failure.
func (c *Client) GraphQL(ctx context.Context, req GraphQLRequest, out any, opts ...CallOption) error {
	body, err := c.send(ctx, http.MethodPost, c.graphqlURL, req, opts...)
	if err != nil {
		return err
	}

	var resp graphQLResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode graphql response: %w", err)
	}
	if len(resp.Errors) > 0 {
		detail, _ := json.Marshal(map[string]any{"message": resp.Errors[0].Message, "errors": resp.Errors})
		return &apierror.ResponseError{
			Method: http.MethodPost,
			URL:    c.graphqlURL,
			Response: &apierror.Response{
				Status:     http.StatusOK,
				StatusText: http.StatusText(http.StatusOK),
				Body:       detail,
				URL:        c.graphqlURL,
			},
		}
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}
