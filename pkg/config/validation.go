package config

import (
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

const redactedValue = "***"

// credentialFields are always masked by Masked.
var credentialFields = map[string]bool{
	"secret_access_key": true,
	"session_token":     true,
}

// String returns the configuration as an indented key/value listing
func (c *Config) String() string {
	var sb strings.Builder
	writeStruct(&sb, reflect.ValueOf(c).Elem(), "")
	return sb.String()
}

// Redacted is String on Masked(secrets).
func (c *Config) Redacted(secrets *Config) string {
	return c.Masked(secrets).String()
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

// Masked returns a copy with credentials and every non-empty string that came
// from the secrets file replaced by "***". secrets may be nil.
func (c *Config) Masked(secrets *Config) *Config {
	out := *c
	var mask reflect.Value
	if secrets != nil {
		mask = reflect.ValueOf(secrets).Elem()
	}
	maskStruct(reflect.ValueOf(&out).Elem(), mask)
	return &out
}

func maskStruct(v, mask reflect.Value) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		var maskField reflect.Value
		if mask.IsValid() {
			maskField = mask.Field(i)
		}

		if field.Kind() == reflect.Struct {
			maskStruct(field, maskField)
			continue
		}
		if field.Kind() != reflect.String || field.String() == "" {
			continue
		}
		fromSecrets := maskField.IsValid() && !maskField.IsZero()
		if credentialFields[fieldName(t.Field(i))] || fromSecrets {
			field.SetString(redactedValue)
		}
	}
}

func writeStruct(sb *strings.Builder, v reflect.Value, prefix string) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i)
		if !value.CanInterface() {
			continue
		}
		name := fieldName(field)
		if value.Kind() == reflect.Struct {
			fmt.Fprintf(sb, "%s%s:\n", prefix, name)
			writeStruct(sb, value, prefix+"  ")
			continue
		}
		fmt.Fprintf(sb, "%s%s: %v\n", prefix, name, value.Interface())
	}
}

func fieldName(field reflect.StructField) string {
	if tag := field.Tag.Get("mapstructure"); tag != "" && tag != "-" {
		return tag
	}
	return strings.ToLower(field.Name)
}
