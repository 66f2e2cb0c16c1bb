package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tordrt/schemadocs/internal/apperr"
)

// Environment variables that override publisher settings.
const (
	EnvURL      = "CONFLUENCE_URL"
	EnvUsername = "CONFLUENCE_USERNAME"
	EnvAPIToken = "CONFLUENCE_API_TOKEN"
	EnvSpaceKey = "CONFLUENCE_SPACE_KEY"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadConnections reads and validates the connections file.
func LoadConnections(path string) (*Connections, error) {
	var conns Connections
	if err := decodeFile(path, &conns); err != nil {
		return nil, apperr.Config("load connections", err)
	}

	for i := range conns.Databases {
		conns.Databases[i].applyDefaults()
	}

	if err := validate.Struct(&conns); err != nil {
		return nil, apperr.Config("validate connections", describe(err))
	}

	seen := make(map[string]bool, len(conns.Databases))
	for _, d := range conns.Databases {
		if seen[d.Name] {
			return nil, apperr.Config("validate connections", fmt.Errorf("duplicate database name %q", d.Name))
		}
		seen[d.Name] = true
	}

	return &conns, nil
}

// LoadPublisher reads the publisher config, applies environment overrides
// from lookup (os.LookupEnv when nil) and validates the result.
func LoadPublisher(path string, lookup func(string) (string, bool)) (*Publisher, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var pub Publisher
	if err := decodeFile(path, &pub); err != nil {
		return nil, apperr.Config("load publisher config", err)
	}

	overrides := map[string]*string{
		EnvURL:      &pub.URL,
		EnvUsername: &pub.Username,
		EnvAPIToken: &pub.APIToken,
		EnvSpaceKey: &pub.SpaceKey,
	}
	for env, field := range overrides {
		if v, ok := lookup(env); ok && v != "" {
			*field = v
		}
	}

	pub.applyDefaults()

	if err := validate.Struct(&pub); err != nil {
		return nil, apperr.Config("validate publisher config", describe(err))
	}

	return &pub, nil
}

// decodeFile unmarshals a JSON or YAML file into v based on its extension.
func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse YAML %s: %w", path, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("failed to parse JSON %s: %w", path, err)
		}
	}
	return nil
}

// describe flattens validator errors into one readable error.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
