package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"courserag/internal/domain"
	"courserag/internal/store"
)

var (
	ErrToolNotFound  = errors.New("tool not found")
	ErrDuplicateTool = errors.New("tool already registered")
	ErrInvalidInput  = errors.New("invalid tool input")
)

// Property describes one tool parameter in JSON-schema terms.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Schema is the object schema of a tool's input.
type Schema struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Definition is what the reasoning engine sees of a tool.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"input_schema"`
}

// Tool is a capability the reasoning engine can invoke by name.
type Tool interface {
	Definition() Definition
	// Run executes the tool with raw JSON input. Input that fails to decode or
	// validate yields an error wrapping ErrInvalidInput.
	Run(ctx context.Context, input json.RawMessage) (string, error)
}

// SourceTracker is implemented by tools that cite sources.
type SourceTracker interface {
	LastSources() []domain.Source
	ResetSources()
}

// CourseIndex is the part of the course store the tools depend on.
type CourseIndex interface {
	Search(ctx context.Context, q store.Query) (store.SearchResults, error)
	ResolveCourseName(ctx context.Context, name string) (string, bool, error)
	Course(ctx context.Context, title string) (domain.Course, bool, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeInput unmarshals and validates tool input into dst.
func decodeInput(input json.RawMessage, dst any) error {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	if err := json.Unmarshal(input, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return ValidateParams(dst)
}

// ValidateParams checks decoded tool parameters against their validate tags.
// Failures wrap ErrInvalidInput.
func ValidateParams(p any) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
