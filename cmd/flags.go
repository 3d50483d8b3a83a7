package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// AddFlagValidation wraps the flag's value so invalid input is rejected
// while flags are parsed, before RunE.
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}
	flag.Value = &validatingValue{Value: flag.Value, validator: validator}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// addFormatFlag registers -f/--format restricted to formats.
func addFormatFlag(cmd *cobra.Command, target *string, formats ...string) {
	cmd.Flags().StringVarP(target, "format", "f", formats[0],
		fmt.Sprintf("Output format (%s)", strings.Join(formats, "|")))
	AddFlagValidation(cmd, "format", func(format string) error {
		return ValidateFormat(format, formats)
	})
}

// ValidateFormat checks format against the supported list, suggesting the
// closest match.
func ValidateFormat(format string, valid []string) error {
	lower := strings.ToLower(format)
	for _, v := range valid {
		if lower == v {
			return nil
		}
	}
	for _, v := range valid {
		if strings.HasPrefix(v, lower) && lower != "" {
			return fmt.Errorf("invalid format %q, did you mean %q? (supported: %s)",
				format, v, strings.Join(valid, ", "))
		}
	}
	return fmt.Errorf("invalid format %q (supported: %s)", format, strings.Join(valid, ", "))
}

// ValidatePort checks a port flag value.
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ParseProps decodes component props given inline as JSON or as @file.json.
func ParseProps(value string) (map[string]interface{}, error) {
	if value == "" {
		return map[string]interface{}{}, nil
	}

	data := []byte(value)
	source := "props"
	if filename, ok := strings.CutPrefix(value, "@"); ok {
		var err error
		data, err = os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read props file %s: %w", filename, err)
		}
		source = "props file " + filename
	}

	var props map[string]interface{}
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", source, err)
	}
	if props == nil {
		props = map[string]interface{}{}
	}
	return props, nil
}
